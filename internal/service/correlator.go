package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/limiter"
	"github.com/and161185/passby/internal/metrics"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

// CorrelatorConfig tunes mutual-sighting detection.
type CorrelatorConfig struct {
	// CorrelationWindow bounds the gap between the two directions and
	// the age of the newer one.
	CorrelationWindow time.Duration `mapstructure:"correlation-window"`
	// CooldownWindow is the minimum gap between two confirmations of a pair.
	CooldownWindow time.Duration `mapstructure:"cooldown-window"`
	// ConfirmRetries caps retries of a confirmation that hit a
	// serialization failure or deadlock.
	ConfirmRetries uint64        `mapstructure:"confirm-retries"`
	RetryBackoff   time.Duration `mapstructure:"retry-backoff"`
}

// DefaultCorrelatorConfig returns the production windows.
func DefaultCorrelatorConfig() CorrelatorConfig {
	return CorrelatorConfig{
		CorrelationWindow: 5 * time.Minute,
		CooldownWindow:    5 * time.Minute,
		ConfirmRetries:    3,
		RetryBackoff:      50 * time.Millisecond,
	}
}

// Resolver maps a broadcast token to its owner.
type Resolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// Recorder records a confirmed encounter and reports whether the pair is matched.
type Recorder interface {
	Record(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Correlator turns one-sided observations into confirmed encounters.
type Correlator struct {
	tokens Resolver
	obs    repository.ObservationRepository
	ledger Recorder
	lim    limiter.Limiter
	clock  clockwork.Clock
	cfg    CorrelatorConfig
	log    *zap.Logger
}

// NewCorrelator constructs a Correlator. A nil limiter disables throttling.
func NewCorrelator(
	tokens Resolver, obs repository.ObservationRepository, ledger Recorder, lim limiter.Limiter,
	clock clockwork.Clock, cfg CorrelatorConfig, log *zap.Logger,
) *Correlator {
	def := DefaultCorrelatorConfig()
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = def.CorrelationWindow
	}
	if cfg.CooldownWindow <= 0 {
		cfg.CooldownWindow = def.CooldownWindow
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if lim == nil {
		lim = limiter.Unlimited{}
	}
	return &Correlator{tokens: tokens, obs: obs, ledger: ledger, lim: lim, clock: clock, cfg: cfg, log: log}
}

// Observe handles one report. Storage failures are logged and reported
// as pending, never returned: the device simply reports again. A
// confirmation whose encounter write fails is released so the next
// report can confirm the pair.
func (c *Correlator) Observe(ctx context.Context, o model.Observation) model.ObservationResult {
	res := c.observe(ctx, o)
	metrics.Observation(string(res.Status))
	return res
}

func (c *Correlator) observe(ctx context.Context, o model.Observation) model.ObservationResult {
	log := c.log.With(zap.Stringer("reporter", o.Reporter), zap.Int("rssi", o.RSSI))
	if o.ClientTime != nil {
		log = log.With(zap.Time("client_time", *o.ClientTime))
	}

	if !c.lim.Allow(o.Reporter) {
		return model.ObservationResult{Status: model.StatusThrottled}
	}

	owner, err := c.tokens.Resolve(ctx, o.Token)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return model.ObservationResult{Status: model.StatusUnresolved}
	case err != nil:
		log.Error("resolve token", zap.Error(err))
		return model.ObservationResult{Status: model.StatusPending}
	case owner == o.Reporter:
		return model.ObservationResult{Status: model.StatusSelf, Resolved: true}
	}

	now := c.clock.Now()
	pair, swapped := model.Canonical(o.Reporter, owner)
	row, err := c.obs.Touch(ctx, pair, !swapped, now)
	if err != nil {
		log.Error("record observation", zap.Stringer("observed", owner), zap.Error(err))
		return model.ObservationResult{Status: model.StatusPending, Resolved: true}
	}
	if !row.Mutual(now, c.cfg.CorrelationWindow) {
		return model.ObservationResult{Status: model.StatusPending, Resolved: true}
	}
	if !row.Actable(now, c.cfg.CooldownWindow) {
		return model.ObservationResult{Status: model.StatusCooldown, Resolved: true}
	}

	confirmed, err := c.confirm(ctx, pair, now)
	if err != nil {
		log.Error("confirm encounter", zap.Stringer("observed", owner), zap.Error(err))
		return model.ObservationResult{Status: model.StatusPending, Resolved: true}
	}
	if !confirmed {
		return model.ObservationResult{Status: model.StatusCooldown, Resolved: true}
	}

	matched, err := c.ledger.Record(ctx, pair.First, pair.Second)
	if err != nil {
		log.Error("record encounter", zap.Stringer("observed", owner), zap.Error(err))
		// row.LastConfirmedAt is what Confirm saw under its lock: any other
		// stamp since Touch would have put the pair in cooldown.
		if rerr := c.obs.Release(context.WithoutCancel(ctx), pair, now, row.LastConfirmedAt); rerr != nil {
			log.Error("release confirmation", zap.Stringer("observed", owner), zap.Error(rerr))
		}
		return model.ObservationResult{Status: model.StatusPending, Resolved: true}
	}
	log.Debug("encounter confirmed", zap.Stringer("observed", owner), zap.Bool("matched", matched))
	return model.ObservationResult{Status: model.StatusConfirmed, Resolved: true, Mutual: true, MatchCreated: matched}
}

// confirm stamps the pair, retrying whole transactions that failed on
// serialization or deadlock.
func (c *Correlator) confirm(ctx context.Context, p model.Pair, now time.Time) (bool, error) {
	var confirmed bool
	b := retry.WithMaxRetries(c.cfg.ConfirmRetries, retry.NewConstant(c.cfg.RetryBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := c.obs.Confirm(ctx, p, now, c.cfg.CooldownWindow)
		if errors.Is(err, errs.ErrTransient) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		confirmed = ok
		return nil
	})
	return confirmed, err
}
