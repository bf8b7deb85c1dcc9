package repository

import (
	"context"
	"time"

	"github.com/and161185/passby/internal/model"
)

// ObservationRepository keeps one-sided sightings per unordered pair.
type ObservationRepository interface {
	// Touch merge-writes the sighting direction (forward means First saw
	// Second) at the given time and returns the resulting row.
	Touch(ctx context.Context, p model.Pair, forward bool, at time.Time) (model.ObservationPair, error)
	// Confirm locks the row, re-checks cooldown and stamps last_confirmed_at.
	// It reports false when another confirmation won the race.
	Confirm(ctx context.Context, p model.Pair, now time.Time, cooldown time.Duration) (bool, error)
	// Release puts last_confirmed_at back to previous if it still holds
	// the stamp written at stampedAt.
	Release(ctx context.Context, p model.Pair, stampedAt time.Time, previous *time.Time) error
}
