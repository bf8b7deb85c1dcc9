package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/metrics"
	"github.com/and161185/passby/internal/repository"
)

// EncounterConfig bounds one encounter sweep pass.
type EncounterConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	BatchSize        int           `mapstructure:"batch-size"`
	MaxBatches       int           `mapstructure:"max-batches"`
	StatementTimeout time.Duration `mapstructure:"statement-timeout"`

	OwnerPageSize int `mapstructure:"owner-page-size"`
	PerOwnerBatch int `mapstructure:"per-owner-batch"`
	MaxOwners     int `mapstructure:"max-owners"`
}

// DefaultEncounterConfig returns the production limits.
func DefaultEncounterConfig() EncounterConfig {
	return EncounterConfig{
		TTL:              24 * time.Hour,
		BatchSize:        400,
		MaxBatches:       10,
		StatementTimeout: 5 * time.Second,
		OwnerPageSize:    50,
		PerOwnerBatch:    200,
		MaxOwners:        500,
	}
}

const encounterBookmark = "encounters"

// Encounters deletes encounter rows older than the TTL. The bulk
// strategy needs the last_encountered_at index; when it times out the
// pass continues owner by owner from a persisted bookmark.
type Encounters struct {
	repo      repository.EncounterRepository
	bookmarks repository.BookmarkRepository
	clock     clockwork.Clock
	cfg       EncounterConfig
	logger    *zap.Logger
}

// NewEncounters constructs the encounter sweeper.
func NewEncounters(
	repo repository.EncounterRepository, bookmarks repository.BookmarkRepository,
	clock clockwork.Clock, cfg EncounterConfig, logger *zap.Logger,
) *Encounters {
	return &Encounters{repo: repo, bookmarks: bookmarks, clock: clock, cfg: cfg, logger: logger}
}

// Name implements Job.
func (e *Encounters) Name() string { return "encounters" }

// Sweep implements Job.
func (e *Encounters) Sweep(ctx context.Context) (int64, error) {
	cutoff := e.clock.Now().Add(-e.cfg.TTL)

	var total int64
	for i := 0; i < e.cfg.MaxBatches; i++ {
		n, err := e.repo.DeleteStale(ctx, cutoff, e.cfg.BatchSize, e.cfg.StatementTimeout)
		if errors.Is(err, errs.ErrTimeout) {
			e.logger.Warn("bulk encounter sweep unavailable, falling back to per-owner sweep; check the last_encountered_at index",
				zap.Error(err))
			metrics.SweepFallback(e.Name())
			m, err := e.sweepPerOwner(ctx, cutoff)
			return total + m, err
		}
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(e.cfg.BatchSize) {
			break
		}
	}
	return total, nil
}

func (e *Encounters) sweepPerOwner(ctx context.Context, cutoff time.Time) (int64, error) {
	cursor, err := e.bookmarks.Load(ctx, encounterBookmark)
	if errors.Is(err, errs.ErrNotFound) {
		cursor, err = uuid.Nil, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load bookmark: %w", err)
	}

	var total int64
	processed := 0
	for processed < e.cfg.MaxOwners {
		limit := min(e.cfg.OwnerPageSize, e.cfg.MaxOwners-processed)
		owners, err := e.repo.OwnersAfter(ctx, cursor, limit)
		if err != nil {
			return total, err
		}
		for _, owner := range owners {
			n, err := e.sweepOwner(ctx, owner, cutoff)
			total += n
			if err != nil {
				return total, err
			}
		}
		processed += len(owners)

		if len(owners) < limit {
			// owner keyspace exhausted; next run starts over
			if err := e.bookmarks.Clear(ctx, encounterBookmark); err != nil {
				return total, fmt.Errorf("clear bookmark: %w", err)
			}
			return total, nil
		}
		cursor = owners[len(owners)-1]
		if err := e.bookmarks.Save(ctx, encounterBookmark, cursor, e.clock.Now()); err != nil {
			return total, fmt.Errorf("save bookmark: %w", err)
		}
	}
	return total, nil
}

// sweepOwner deletes at most MaxBatches batches of one owner's rows.
// Rows left behind are picked up when the bookmark wraps around.
func (e *Encounters) sweepOwner(ctx context.Context, owner uuid.UUID, cutoff time.Time) (int64, error) {
	var total int64
	for i := 0; i < e.cfg.MaxBatches; i++ {
		n, err := e.repo.DeleteStaleForOwner(ctx, owner, cutoff, e.cfg.PerOwnerBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(e.cfg.PerOwnerBatch) {
			break
		}
	}
	return total, nil
}
