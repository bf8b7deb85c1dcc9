package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/passby/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// BookmarkRepo implements BookmarkRepository using PostgreSQL.
type BookmarkRepo struct{ db *DB }

// NewBookmarkRepo constructs a bookmark repository.
func NewBookmarkRepo(db *DB) *BookmarkRepo { return &BookmarkRepo{db: db} }

// Load returns the cursor saved under name.
func (r *BookmarkRepo) Load(ctx context.Context, name string) (uuid.UUID, error) {
	const q = `SELECT cursor FROM sweep_bookmarks WHERE name=$1`
	var c uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, name).Scan(&c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return c, nil
}

// Save upserts the cursor under name.
func (r *BookmarkRepo) Save(ctx context.Context, name string, cursor uuid.UUID, now time.Time) error {
	const q = `
INSERT INTO sweep_bookmarks (name, cursor, updated_at) VALUES ($1,$2,$3)
ON CONFLICT (name) DO UPDATE SET cursor=EXCLUDED.cursor, updated_at=EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, q, name, cursor, now)
	return err
}

// Clear removes the bookmark so the next run starts from the beginning.
func (r *BookmarkRepo) Clear(ctx context.Context, name string) error {
	const q = `DELETE FROM sweep_bookmarks WHERE name=$1`
	_, err := r.db.Pool.Exec(ctx, q, name)
	return err
}
