package sweeper

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/and161185/passby/internal/repository"
)

// TokenConfig bounds one token sweep pass.
type TokenConfig struct {
	BatchSize  int `mapstructure:"batch-size"`
	MaxBatches int `mapstructure:"max-batches"`
}

// DefaultTokenConfig returns the production limits.
func DefaultTokenConfig() TokenConfig { return TokenConfig{BatchSize: 400, MaxBatches: 10} }

// Tokens deletes ephemeral tokens with expires_at <= now.
type Tokens struct {
	repo  repository.TokenRepository
	clock clockwork.Clock
	cfg   TokenConfig
}

// NewTokens constructs the token sweeper.
func NewTokens(repo repository.TokenRepository, clock clockwork.Clock, cfg TokenConfig) *Tokens {
	return &Tokens{repo: repo, clock: clock, cfg: cfg}
}

// Name implements Job.
func (t *Tokens) Name() string { return "tokens" }

// Sweep implements Job.
func (t *Tokens) Sweep(ctx context.Context) (int64, error) {
	now := t.clock.Now()
	var total int64
	for i := 0; i < t.cfg.MaxBatches; i++ {
		n, err := t.repo.DeleteExpired(ctx, now, t.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(t.cfg.BatchSize) {
			break
		}
	}
	return total, nil
}
