package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public identity of a user
type Profile struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name,omitempty" db:"display_name"`
	AvatarRef   string    `json:"avatar_ref,omitempty" db:"avatar_ref"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
}

// Name returns the display name, falling back to the username
func (p *Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// ProfileUpdate contains the fields an owner may change on their profile
type ProfileUpdate struct {
	DisplayName string `json:"display_name" binding:"max=60"`
	AvatarRef   string `json:"avatar_ref" binding:"omitempty,url"`
}

// OrderProfiles returns profiles in the order of ids. Profiles whose id is
// not listed are dropped.
func OrderProfiles(profiles []*Profile, ids []uuid.UUID) []*Profile {
	byID := make(map[uuid.UUID]*Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	out := make([]*Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
