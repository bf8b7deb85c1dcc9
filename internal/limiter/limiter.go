// Package limiter throttles observation reports per reporter.
package limiter

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Limiter decides whether a reporter may submit another observation.
type Limiter interface {
	Allow(reporter uuid.UUID) bool
}

// Config sets the token bucket of each reporter and the number of
// reporters tracked at once.
type Config struct {
	Every   time.Duration `mapstructure:"every"`
	Burst   int           `mapstructure:"burst"`
	Tracked int           `mapstructure:"tracked"`
}

// DefaultConfig allows a short burst and one report every two seconds afterwards.
func DefaultConfig() Config {
	return Config{Every: 2 * time.Second, Burst: 10, Tracked: 100_000}
}

// PerReporter keeps a token bucket per reporter in a bounded LRU table.
// Evicted reporters start over with a full bucket.
type PerReporter struct {
	mu      sync.Mutex
	buckets *lru.Cache[uuid.UUID, *rate.Limiter]
	limit   rate.Limit
	burst   int
	clock   clockwork.Clock
}

// New constructs a PerReporter limiter. Every <= 0 disables throttling.
func New(cfg Config, clock clockwork.Clock) (*PerReporter, error) {
	if cfg.Tracked <= 0 {
		cfg.Tracked = DefaultConfig().Tracked
	}
	buckets, err := lru.New[uuid.UUID, *rate.Limiter](cfg.Tracked)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.Every > 0 {
		limit = rate.Every(cfg.Every)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &PerReporter{buckets: buckets, limit: limit, burst: burst, clock: clock}, nil
}

// Allow consumes one token from the reporter's bucket.
func (l *PerReporter) Allow(reporter uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(reporter)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(reporter, b)
	}
	return b.AllowN(l.clock.Now(), 1)
}

// Unlimited never throttles.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(uuid.UUID) bool { return true }
