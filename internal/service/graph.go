package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/events"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

// GraphService is the like / match / block state machine.
type GraphService interface {
	// Like records from->to and reports whether the pair is now matched.
	// It is a silent no-op while a block exists in either direction.
	Like(ctx context.Context, from, to uuid.UUID) (bool, error)
	// Unlike removes from->to; errs.ErrConflict once matched.
	Unlike(ctx context.Context, from, to uuid.UUID) error
	// Block stores the edge and purges likes, match and encounters of the pair.
	Block(ctx context.Context, from, to uuid.UUID) error
	// Unblock removes the edge only.
	Unblock(ctx context.Context, from, to uuid.UUID) error
	MatchIfMutual(ctx context.Context, a, b uuid.UUID) (bool, error)
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error)
	ListBlocked(ctx context.Context, owner uuid.UUID) ([]model.BlockedUser, error)
}

// EncounterPurger removes the encounter mirrors of a pair.
type EncounterPurger interface {
	DeleteBetween(ctx context.Context, a, b uuid.UUID) error
}

type GraphServiceImpl struct {
	rel        repository.RelationRepository
	encounters EncounterPurger
	pub        events.Publisher
	clock      clockwork.Clock
	log        *zap.Logger
}

// NewGraphService constructs GraphService.
func NewGraphService(
	rel repository.RelationRepository, encounters EncounterPurger, pub events.Publisher,
	clock clockwork.Clock, log *zap.Logger,
) *GraphServiceImpl {
	if pub == nil {
		pub = events.Nop{}
	}
	return &GraphServiceImpl{rel: rel, encounters: encounters, pub: pub, clock: clock, log: log}
}

// Like stores the edge and creates the match when the reverse edge exists.
func (s *GraphServiceImpl) Like(ctx context.Context, from, to uuid.UUID) (bool, error) {
	if err := checkPair(from, to); err != nil {
		return false, err
	}
	now := s.clock.Now()
	out, err := s.rel.Like(ctx, from, to, now)
	if err != nil {
		return false, err
	}
	if out.Blocked {
		s.log.Debug("like ignored, pair blocked", zap.Stringer("from", from))
		return false, nil
	}
	if out.MatchCreated {
		s.pub.MatchCreated(from, to, now)
	}
	return out.Mutual, nil
}

// Unlike removes the edge unless the pair is matched.
func (s *GraphServiceImpl) Unlike(ctx context.Context, from, to uuid.UUID) error {
	if err := checkPair(from, to); err != nil {
		return err
	}
	if err := s.rel.Unlike(ctx, from, to); err != nil {
		return fmt.Errorf("unlike: %w", err)
	}
	return nil
}

// Block runs a sequence of idempotent deletes after storing the edge.
// The first failing step stops the sequence; calling Block again
// completes it.
func (s *GraphServiceImpl) Block(ctx context.Context, from, to uuid.UUID) error {
	if err := checkPair(from, to); err != nil {
		return err
	}
	if err := s.rel.InsertBlock(ctx, from, to, s.clock.Now()); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"delete like", func() error { return s.rel.DeleteLike(ctx, from, to) }},
		{"delete reverse like", func() error { return s.rel.DeleteLike(ctx, to, from) }},
		{"delete match", func() error { return s.rel.DeleteMatch(ctx, from, to) }},
		{"delete encounters", func() error { return s.encounters.DeleteBetween(ctx, from, to) }},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			s.log.Warn("block cascade interrupted", zap.String("step", st.name), zap.Error(err))
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

// Unblock deletes the edge; purged likes, match and encounters are not restored.
func (s *GraphServiceImpl) Unblock(ctx context.Context, from, to uuid.UUID) error {
	if err := checkPair(from, to); err != nil {
		return err
	}
	return s.rel.DeleteBlock(ctx, from, to)
}

// MatchIfMutual ensures the match mirrors when both likes exist and no block does.
func (s *GraphServiceImpl) MatchIfMutual(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if err := checkPair(a, b); err != nil {
		return false, err
	}
	now := s.clock.Now()
	out, err := s.rel.MatchIfMutual(ctx, a, b, now)
	if err != nil {
		return false, err
	}
	if out.MatchCreated {
		s.pub.MatchCreated(a, b, now)
	}
	return out.Mutual, nil
}

// IsBlocked reports a block in either direction. A self pair is never blocked.
func (s *GraphServiceImpl) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if err := checkPair(a, b); err != nil {
		if errors.Is(err, errs.ErrSelf) {
			return false, nil
		}
		return false, err
	}
	return s.rel.IsBlocked(ctx, a, b)
}

// IsMatched reports whether a and b are matched.
func (s *GraphServiceImpl) IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if err := checkPair(a, b); err != nil {
		if errors.Is(err, errs.ErrSelf) {
			return false, nil
		}
		return false, err
	}
	return s.rel.IsMatched(ctx, a, b)
}

// ListFriends returns matches not hidden by a block.
func (s *GraphServiceImpl) ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	return s.rel.ListFriends(ctx, owner)
}

// ListBlocked returns identities the owner blocked.
func (s *GraphServiceImpl) ListBlocked(ctx context.Context, owner uuid.UUID) ([]model.BlockedUser, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	return s.rel.ListBlocked(ctx, owner)
}
