package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/limiter"
	"github.com/and161185/passby/internal/model"
)

// pairWithTokens issues a token to two fresh users.
func pairWithTokens(t *testing.T, c *core) (a, b uuid.UUID) {
	t.Helper()
	a, b = newID(), newID()
	for id, tok := range map[uuid.UUID]string{a: "tok-" + a.String(), b: "tok-" + b.String()} {
		if _, err := c.registry.Issue(context.Background(), id, tok); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}
	return a, b
}

// sees makes reporter observe the token of observed.
func sees(c *core, reporter, observed uuid.UUID) model.ObservationResult {
	return c.corr.Observe(context.Background(), model.Observation{Reporter: reporter, Token: "tok-" + observed.String(), RSSI: -60})
}

func encounterCount(c *core, a, b uuid.UUID) int64 {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.encounters[edge{a, b}].OccurrenceCount
}

func TestCorrelator_MutualThenCooldown(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	if r := sees(c, a, b); r.Status != model.StatusPending || !r.Resolved || r.Mutual {
		t.Fatalf("first report: %+v", r)
	}

	c.clock.Advance(2 * time.Minute)
	r := sees(c, b, a)
	if r.Status != model.StatusConfirmed || !r.Mutual || !r.Resolved {
		t.Fatalf("second report: %+v", r)
	}
	if n := encounterCount(c, a, b); n != 1 {
		t.Fatalf("count=%d, want 1", n)
	}
	if encounterCount(c, b, a) != encounterCount(c, a, b) {
		t.Fatalf("mirrors disagree")
	}

	c.clock.Advance(10 * time.Second)
	r = sees(c, a, b)
	if r.Status != model.StatusCooldown || !r.Resolved || r.Mutual {
		t.Fatalf("third report: %+v", r)
	}
	if n := encounterCount(c, a, b); n != 1 {
		t.Fatalf("cooldown must not increment, count=%d", n)
	}
}

func TestCorrelator_RepeatAfterCooldownIncrements(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	sees(c, b, a)

	c.clock.Advance(5*time.Minute + time.Second)
	// tokens rotate before they expire
	for _, id := range []uuid.UUID{a, b} {
		if _, err := c.registry.Issue(context.Background(), id, "tok-"+id.String()); err != nil {
			t.Fatalf("reissue: %v", err)
		}
	}
	sees(c, a, b)
	if r := sees(c, b, a); r.Status != model.StatusConfirmed {
		t.Fatalf("after cooldown: %+v", r)
	}
	if n := encounterCount(c, a, b); n != 2 {
		t.Fatalf("count=%d, want 2", n)
	}
	if len(c.pub.repeats) != 1 {
		t.Fatalf("repeated events=%d, want 1", len(c.pub.repeats))
	}
}

func TestCorrelator_OutsideWindowStaysPending(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	c.clock.Advance(5*time.Minute + 30*time.Second)
	if r := sees(c, b, a); r.Status != model.StatusPending || r.Mutual {
		t.Fatalf("gap over window: %+v", r)
	}
	if n := encounterCount(c, a, b); n != 0 {
		t.Fatalf("count=%d, want 0", n)
	}
}

func TestCorrelator_UnresolvedAndSelf(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, _ := pairWithTokens(t, c)

	r := c.corr.Observe(context.Background(), model.Observation{Reporter: a, Token: "nobody"})
	if r.Status != model.StatusUnresolved || r.Resolved {
		t.Fatalf("unknown token: %+v", r)
	}
	if r := sees(c, a, a); r.Status != model.StatusSelf {
		t.Fatalf("own token: %+v", r)
	}
	if c.store.calls["Touch"] != 0 {
		t.Fatalf("no observation may be written")
	}
}

func TestCorrelator_Throttled(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	lim, err := limiter.New(limiter.Config{Every: time.Hour, Burst: 1, Tracked: 4}, c.clock)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	c.corr = NewCorrelator(c.registry, c.store, c.ledger, lim, c.clock, DefaultCorrelatorConfig(), zaptest.NewLogger(t))
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	if r := sees(c, a, b); r.Status != model.StatusThrottled {
		t.Fatalf("second report: %+v", r)
	}
	if c.store.calls["Touch"] != 1 {
		t.Fatalf("throttled report must not mutate state")
	}
}

func TestCorrelator_StorageErrorsDegradeToPending(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	c.store.fail["Touch"] = errors.New("db down")
	if r := sees(c, a, b); r.Status != model.StatusPending || !r.Resolved {
		t.Fatalf("touch failure: %+v", r)
	}
	delete(c.store.fail, "Touch")

	c.store.fail["Lookup"] = errors.New("db down")
	if r := sees(c, b, a); r.Status != model.StatusPending || r.Resolved {
		t.Fatalf("lookup failure: %+v", r)
	}
}

func TestCorrelator_TransientConfirmRetried(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	cfg := DefaultCorrelatorConfig()
	cfg.ConfirmRetries = 2
	cfg.RetryBackoff = time.Millisecond
	c.corr = NewCorrelator(c.registry, c.store, c.ledger, nil, c.clock, cfg, zaptest.NewLogger(t))
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	c.store.fail["Confirm"] = fmt.Errorf("%w: serialization failure", errs.ErrTransient)
	if r := sees(c, b, a); r.Status != model.StatusPending {
		t.Fatalf("exhausted retries: %+v", r)
	}
	if got := c.store.calls["Confirm"]; got != 3 {
		t.Fatalf("confirm calls=%d, want 3", got)
	}
	if encounterCount(c, a, b) != 0 {
		t.Fatalf("nothing may be recorded")
	}
}

func TestCorrelator_PermanentConfirmErrorNotRetried(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	c.store.fail["Confirm"] = errors.New("syntax error")
	sees(c, b, a)
	if got := c.store.calls["Confirm"]; got != 1 {
		t.Fatalf("confirm calls=%d, want 1", got)
	}
}

func TestCorrelator_ConfirmReportsExistingMatch(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	ctx := context.Background()
	a, b := pairWithTokens(t, c)

	if _, err := c.graph.Like(ctx, a, b); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := c.graph.Like(ctx, b, a); err != nil {
		t.Fatalf("like back: %v", err)
	}
	sees(c, a, b)
	r := sees(c, b, a)
	if !r.MatchCreated {
		t.Fatalf("mutual likes must be reported: %+v", r)
	}
	if len(c.pub.matches) != 1 {
		t.Fatalf("match event published %d times, want 1", len(c.pub.matches))
	}
}

func TestCorrelator_RecordFailureReleasesConfirmation(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	c.clock.Advance(time.Minute)
	c.store.fail["Record"] = errors.New("db down")
	r := sees(c, b, a)
	if r.Status != model.StatusPending || r.Mutual || !r.Resolved {
		t.Fatalf("failed record must stay pending: %+v", r)
	}
	if c.store.calls["Release"] != 1 {
		t.Fatalf("release calls=%d, want 1", c.store.calls["Release"])
	}
	delete(c.store.fail, "Record")

	c.clock.Advance(30 * time.Second)
	r = sees(c, a, b)
	if r.Status != model.StatusConfirmed || !r.Mutual {
		t.Fatalf("retry inside the window must confirm: %+v", r)
	}
	if n := encounterCount(c, a, b); n != 1 {
		t.Fatalf("count=%d, want 1", n)
	}
}

func TestCorrelator_ReleaseKeepsNewerStamp(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)
	p, _ := model.Canonical(a, b)

	sees(c, a, b)
	sees(c, b, a)
	confirmedAt := c.clock.Now()

	if err := c.store.Release(context.Background(), p, confirmedAt.Add(-time.Second), nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	c.store.mu.Lock()
	got := c.store.obs[p].LastConfirmedAt
	c.store.mu.Unlock()
	if got == nil || !got.Equal(confirmedAt) {
		t.Fatalf("stale release overwrote stamp: %v", got)
	}
}

func TestCorrelator_ConcurrentReportsConfirmOnce(t *testing.T) {
	t.Parallel()
	c := newCore(t)
	a, b := pairWithTokens(t, c)

	sees(c, a, b)
	sees(c, b, a) // first confirmation
	c.clock.Advance(5*time.Minute + time.Second)
	for _, id := range []uuid.UUID{a, b} {
		if _, err := c.registry.Issue(context.Background(), id, "tok-"+id.String()); err != nil {
			t.Fatalf("reissue: %v", err)
		}
	}
	sees(c, a, b)

	const reporters = 16
	results := make([]model.ObservationResult, reporters)
	var wg sync.WaitGroup
	for i := range reporters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = sees(c, b, a)
			} else {
				results[i] = sees(c, a, b)
			}
		}()
	}
	wg.Wait()

	confirmed := 0
	for _, r := range results {
		switch r.Status {
		case model.StatusConfirmed:
			confirmed++
		case model.StatusCooldown, model.StatusPending:
		default:
			t.Fatalf("unexpected status: %+v", r)
		}
	}
	if confirmed != 1 {
		t.Fatalf("confirmed=%d, want 1", confirmed)
	}
	if n := encounterCount(c, a, b); n != 2 {
		t.Fatalf("count=%d, want 2", n)
	}
	if encounterCount(c, b, a) != 2 {
		t.Fatalf("mirrors disagree")
	}
}

func TestNewCorrelator_Defaults(t *testing.T) {
	c := NewCorrelator(nil, nil, nil, nil, clockwork.NewFakeClock(), CorrelatorConfig{}, zaptest.NewLogger(t))
	if c.cfg.CorrelationWindow != 5*time.Minute || c.cfg.CooldownWindow != 5*time.Minute {
		t.Fatalf("windows: %+v", c.cfg)
	}
	if _, ok := c.lim.(limiter.Unlimited); !ok {
		t.Fatalf("nil limiter must become Unlimited")
	}
}
