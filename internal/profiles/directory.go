// Package profiles resolves user profiles, with an optional Redis read
// cache in front of the store.
package profiles

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

var log = logger.New("profiles")

const (
	cachePrefix  = "profile:"
	defaultLimit = 20
	maxLimit     = 50
)

// Store is the part of the database the directory reads and writes
type Store interface {
	EnsureProfile(ctx context.Context, id uuid.UUID, username string) (*models.Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	SearchProfiles(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error)
}

// Directory looks up profiles. cache may be nil.
type Directory struct {
	db      Store
	cache   redis.Cmdable
	ttl     time.Duration
	timeout time.Duration
}

func NewDirectory(db Store, cache redis.Cmdable, ttl, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Directory{db: db, cache: cache, ttl: ttl, timeout: timeout}
}

func (d *Directory) ctx(ctx context.Context, actor uuid.UUID) (context.Context, context.CancelFunc) {
	return context.WithTimeout(database.WithUser(ctx, actor), d.timeout)
}

// Ensure creates the profile of a newly authenticated user, or touches the
// last seen time of an existing one
func (d *Directory) Ensure(ctx context.Context, id uuid.UUID, username string) (*models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = "user_" + strings.ReplaceAll(id.String(), "-", "")[:8]
	}

	cctx, cancel := d.ctx(ctx, id)
	defer cancel()

	p, err := d.db.EnsureProfile(cctx, id, username)
	if err != nil {
		return nil, apperr.FromContext("ensure profile", err)
	}
	d.store(cctx, p)
	return p, nil
}

// Get returns the profile of id
func (d *Directory) Get(ctx context.Context, actor, id uuid.UUID) (*models.Profile, error) {
	cctx, cancel := d.ctx(ctx, actor)
	defer cancel()

	if p := d.load(cctx, id); p != nil {
		return p, nil
	}

	p, err := d.db.GetProfile(cctx, id)
	if err != nil {
		return nil, apperr.FromContext("load profile", err)
	}
	d.store(cctx, p)
	return p, nil
}

// ByUsername returns the profile with the given username
func (d *Directory) ByUsername(ctx context.Context, actor uuid.UUID, username string) (*models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.ErrProfileNotFound
	}

	cctx, cancel := d.ctx(ctx, actor)
	defer cancel()

	p, err := d.db.GetProfileByUsername(cctx, username)
	if err != nil {
		return nil, apperr.FromContext("load profile", err)
	}
	d.store(cctx, p)
	return p, nil
}

// Search finds profiles whose username or display name starts with query
func (d *Directory) Search(ctx context.Context, actor uuid.UUID, query string, limit int) ([]*models.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.Profile{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	cctx, cancel := d.ctx(ctx, actor)
	defer cancel()

	profiles, err := d.db.SearchProfiles(cctx, query, actor, limit)
	if err != nil {
		return nil, apperr.FromContext("search profiles", err)
	}
	return profiles, nil
}

// Update changes the profile of its owner
func (d *Directory) Update(ctx context.Context, owner uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	cctx, cancel := d.ctx(ctx, owner)
	defer cancel()

	p, err := d.db.UpdateProfile(cctx, owner, update)
	if err != nil {
		return nil, apperr.FromContext("update profile", err)
	}
	d.store(cctx, p)
	return p, nil
}

// Invalidate drops a cached profile
func (d *Directory) Invalidate(ctx context.Context, id uuid.UUID) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Del(ctx, cachePrefix+id.String()).Err(); err != nil {
		log.Warn("Failed to invalidate cached profile %s: %v", id, err)
	}
}

func (d *Directory) load(ctx context.Context, id uuid.UUID) *models.Profile {
	if d.cache == nil {
		return nil
	}
	raw, err := d.cache.Get(ctx, cachePrefix+id.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn("Profile cache read failed: %v", err)
		}
		return nil
	}
	p := &models.Profile{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil
	}
	return p
}

func (d *Directory) store(ctx context.Context, p *models.Profile) {
	if d.cache == nil || p == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, cachePrefix+p.ID.String(), raw, d.ttl).Err(); err != nil {
		log.Warn("Profile cache write failed: %v", err)
	}
}
