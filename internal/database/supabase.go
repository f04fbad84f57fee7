package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type userKey struct{}

// WithUser marks ctx as acting on behalf of userID. On a Supabase store
// every statement then runs under that user's row-level security policies.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user set by WithUser
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// NewSupabaseDB connects to a Supabase Postgres database. Statements issued
// with a WithUser context run as the "authenticated" role carrying that
// user's JWT claims, so policy violations come back as SQLSTATE 42501.
func NewSupabaseDB(connStr string) (*PostgresDB, error) {
	db, err := NewPostgresDB(connStr)
	if err != nil {
		return nil, err
	}
	db.rowLevelSecurity = true
	return db, nil
}

// run executes fn directly, or inside a transaction scoped to the acting
// user when row-level security is on.
func (db *PostgresDB) run(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	userID, ok := UserFromContext(ctx)
	if !db.rowLevelSecurity || !ok {
		return fn(db.DB)
	}

	claims, err := json.Marshal(map[string]string{
		"sub":  userID.String(),
		"role": "authenticated",
	})
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SET LOCAL ROLE authenticated`); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
