// Package sweeper removes expired encounters and tokens in the background.
package sweeper

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/metrics"
)

// Job is one sweeper strategy set. Sweep runs a single bounded pass.
type Job interface {
	Name() string
	Sweep(ctx context.Context) (int64, error)
}

// Schedule is the start delay and period of a job.
type Schedule struct {
	StartDelay time.Duration `mapstructure:"start-delay"`
	Interval   time.Duration `mapstructure:"interval"`
}

// Pass runs one sweep and records its metrics.
func Pass(ctx context.Context, job Job, clock clockwork.Clock, logger *zap.Logger) (int64, error) {
	start := clock.Now()
	n, err := job.Sweep(ctx)
	took := clock.Since(start)
	metrics.SweepPass(job.Name(), took, err)
	metrics.SweepDeleted(job.Name(), n)
	if err != nil {
		logger.Error("sweep failed",
			zap.String("sweeper", job.Name()),
			zap.Int64("deleted", n),
			zap.Duration("took", took),
			zap.Error(err),
		)
		return n, err
	}
	if n > 0 {
		logger.Info("sweep done", zap.String("sweeper", job.Name()), zap.Int64("deleted", n), zap.Duration("took", took))
	} else {
		logger.Debug("sweep found nothing", zap.String("sweeper", job.Name()))
	}
	return n, nil
}

// Run waits StartDelay, then sweeps every Interval until ctx is done.
// Failed passes are logged; the next tick retries. A non-positive
// interval disables the job.
func Run(ctx context.Context, job Job, clock clockwork.Clock, s Schedule, logger *zap.Logger) {
	if s.Interval <= 0 {
		logger.Info("sweeper disabled", zap.String("sweeper", job.Name()))
		return
	}
	logger.Info("sweeper launched",
		zap.String("sweeper", job.Name()),
		zap.Duration("start delay", s.StartDelay),
		zap.Duration("interval", s.Interval),
	)
	select {
	case <-ctx.Done():
		return
	case <-clock.After(s.StartDelay):
	}
	_, _ = Pass(ctx, job, clock, logger)

	ticker := clock.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_, _ = Pass(ctx, job, clock, logger)
		}
	}
}
