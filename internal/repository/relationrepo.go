package repository

import (
	"context"
	"time"

	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RelationRepository stores likes, matches and blocks.
type RelationRepository interface {
	// Like inserts the like edge unless a block exists in either
	// direction, and creates the match mirrors when the reverse like exists.
	Like(ctx context.Context, from, to uuid.UUID, now time.Time) (model.LikeOutcome, error)
	// Unlike deletes the like edge; errs.ErrConflict when the pair is matched.
	Unlike(ctx context.Context, from, to uuid.UUID) error
	// MatchIfMutual ensures match mirrors when both likes exist and no block does.
	MatchIfMutual(ctx context.Context, a, b uuid.UUID, now time.Time) (model.LikeOutcome, error)

	InsertBlock(ctx context.Context, from, to uuid.UUID, now time.Time) error
	DeleteBlock(ctx context.Context, from, to uuid.UUID) error
	DeleteLike(ctx context.Context, from, to uuid.UUID) error
	// DeleteMatch removes both match mirrors.
	DeleteMatch(ctx context.Context, a, b uuid.UUID) error

	// IsBlocked checks both directions.
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error)
	// BlockedAmong returns the peers with a block in either direction with owner.
	BlockedAmong(ctx context.Context, owner uuid.UUID, peers []uuid.UUID) (map[uuid.UUID]struct{}, error)
	// MatchedAmong returns the peers matched with owner.
	MatchedAmong(ctx context.Context, owner uuid.UUID, peers []uuid.UUID) (map[uuid.UUID]struct{}, error)

	ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error)
	ListBlocked(ctx context.Context, owner uuid.UUID) ([]model.BlockedUser, error)
}
