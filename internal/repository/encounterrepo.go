package repository

import (
	"context"
	"time"

	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
)

// EncounterRepository owns the mirrored encounter rows.
type EncounterRepository interface {
	// Record increments both mirrors of the pair in one transaction. It
	// returns recorded=false without writing when a block exists in
	// either direction.
	Record(ctx context.Context, a, b uuid.UUID, now time.Time, ttl time.Duration) (count int64, recorded bool, err error)
	// Recent returns up to limit of the owner's encounters, newest first.
	Recent(ctx context.Context, owner uuid.UUID, limit int) ([]model.Encounter, error)
	// DeleteBetween removes both mirrors of the pair.
	DeleteBetween(ctx context.Context, a, b uuid.UUID) error

	// DeleteStale deletes at most limit rows older than cutoff under a
	// statement timeout.
	DeleteStale(ctx context.Context, cutoff time.Time, limit int, timeout time.Duration) (int64, error)
	// OwnersAfter pages distinct owners strictly after cursor.
	OwnersAfter(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error)
	// DeleteStaleForOwner deletes at most limit of owner's rows older than cutoff.
	DeleteStaleForOwner(ctx context.Context, owner uuid.UUID, cutoff time.Time, limit int) (int64, error)
}

// BookmarkRepository persists sweeper resume points.
type BookmarkRepository interface {
	// Load returns the saved cursor or errs.ErrNotFound.
	Load(ctx context.Context, name string) (uuid.UUID, error)
	Save(ctx context.Context, name string, cursor uuid.UUID, now time.Time) error
	Clear(ctx context.Context, name string) error
}
