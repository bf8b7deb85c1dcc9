package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/events"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

// LedgerConfig bounds encounter retention and listing.
type LedgerConfig struct {
	EncounterTTL     time.Duration `mapstructure:"encounter-ttl"`
	RecentCandidates int           `mapstructure:"recent-candidates"`
	RecentLimit      int           `mapstructure:"recent-limit"`
}

// DefaultLedgerConfig keeps encounters for a day and lists the 30 newest.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{EncounterTTL: 24 * time.Hour, RecentCandidates: 50, RecentLimit: 30}
}

// LedgerService maintains the mirrored encounter records.
type LedgerService interface {
	// Record registers a confirmed encounter and reports whether the pair is matched.
	Record(ctx context.Context, a, b uuid.UUID) (bool, error)
	// ReportDirect records an encounter asserted by caller without correlation.
	ReportDirect(ctx context.Context, caller, peer uuid.UUID) (bool, error)
	// ListRecent returns the owner's newest visible encounters.
	ListRecent(ctx context.Context, owner uuid.UUID) ([]model.RecentEncounter, error)
	// DeleteBetween removes both mirrors of the pair.
	DeleteBetween(ctx context.Context, a, b uuid.UUID) error
}

// Matcher upgrades a pair with mutual likes to a match.
type Matcher interface {
	MatchIfMutual(ctx context.Context, a, b uuid.UUID) (bool, error)
}

type LedgerServiceImpl struct {
	repo  repository.EncounterRepository
	rel   repository.RelationRepository
	match Matcher
	pub   events.Publisher
	clock clockwork.Clock
	cfg   LedgerConfig
	log   *zap.Logger
}

// NewLedgerService constructs LedgerService.
func NewLedgerService(
	repo repository.EncounterRepository, rel repository.RelationRepository, match Matcher,
	pub events.Publisher, clock clockwork.Clock, cfg LedgerConfig, log *zap.Logger,
) *LedgerServiceImpl {
	def := DefaultLedgerConfig()
	if cfg.EncounterTTL <= 0 {
		cfg.EncounterTTL = def.EncounterTTL
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.RecentCandidates < cfg.RecentLimit {
		cfg.RecentCandidates = max(def.RecentCandidates, cfg.RecentLimit)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &LedgerServiceImpl{repo: repo, rel: rel, match: match, pub: pub, clock: clock, cfg: cfg, log: log}
}

func checkPair(a, b uuid.UUID) error {
	if a == uuid.Nil || b == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if a == b {
		return errs.ErrSelf
	}
	return nil
}

// Record increments the pair's encounter. Nothing is written when
// either side blocks the other. A failing match check is logged; the
// encounter itself stays recorded.
func (s *LedgerServiceImpl) Record(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if err := checkPair(a, b); err != nil {
		return false, err
	}
	now := s.clock.Now()
	count, recorded, err := s.repo.Record(ctx, a, b, now, s.cfg.EncounterTTL)
	if err != nil {
		return false, fmt.Errorf("record encounter: %w", err)
	}
	if !recorded {
		return false, nil
	}
	if count > 1 {
		s.pub.EncounterRepeated(a, b, now)
	}

	matched, err := s.match.MatchIfMutual(ctx, a, b)
	if err != nil {
		s.log.Warn("match after encounter", zap.Stringer("a", a), zap.Stringer("b", b), zap.Error(err))
		return false, nil
	}
	return matched, nil
}

// ReportDirect records an encounter reported by caller.
func (s *LedgerServiceImpl) ReportDirect(ctx context.Context, caller, peer uuid.UUID) (bool, error) {
	return s.Record(ctx, caller, peer)
}

// ListRecent drops peers blocked in either direction and annotates friends.
func (s *LedgerServiceImpl) ListRecent(ctx context.Context, owner uuid.UUID) ([]model.RecentEncounter, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	cands, err := s.repo.Recent(ctx, owner, s.cfg.RecentCandidates)
	if err != nil {
		return nil, err
	}
	peers := make([]uuid.UUID, len(cands))
	for i, c := range cands {
		peers[i] = c.PeerID
	}
	blocked, err := s.rel.BlockedAmong(ctx, owner, peers)
	if err != nil {
		return nil, err
	}

	out := make([]model.RecentEncounter, 0, min(len(cands), s.cfg.RecentLimit))
	kept := make([]uuid.UUID, 0, cap(out))
	for _, c := range cands {
		if len(out) == s.cfg.RecentLimit {
			break
		}
		if _, ok := blocked[c.PeerID]; ok {
			continue
		}
		out = append(out, model.RecentEncounter{
			PeerID:            c.PeerID,
			LastEncounteredAt: c.LastEncounteredAt,
			OccurrenceCount:   c.OccurrenceCount,
		})
		kept = append(kept, c.PeerID)
	}

	friends, err := s.rel.MatchedAmong(ctx, owner, kept)
	if err != nil {
		return nil, err
	}
	for i := range out {
		_, out[i].IsFriend = friends[out[i].PeerID]
	}
	return out, nil
}

// DeleteBetween removes both mirrors of the pair.
func (s *LedgerServiceImpl) DeleteBetween(ctx context.Context, a, b uuid.UUID) error {
	if err := checkPair(a, b); err != nil {
		return err
	}
	return s.repo.DeleteBetween(ctx, a, b)
}
