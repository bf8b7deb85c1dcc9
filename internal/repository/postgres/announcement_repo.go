package postgres

import (
	"context"

	"github.com/and161185/passby/internal/model"
)

// AnnouncementRepo implements AnnouncementRepository using PostgreSQL.
type AnnouncementRepo struct{ db *DB }

// NewAnnouncementRepo constructs an announcement repository.
func NewAnnouncementRepo(db *DB) *AnnouncementRepo { return &AnnouncementRepo{db: db} }

// Recent lists announcements newest first.
func (r *AnnouncementRepo) Recent(ctx context.Context, limit int) ([]model.Announcement, error) {
	const q = `
SELECT id, title, body, published_at, link_url, importance
FROM announcements
ORDER BY published_at DESC, id
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err = rows.Scan(&a.ID, &a.Title, &a.Body, &a.PublishedAt, &a.LinkURL, &a.Importance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
