package postgres

import (
	"context"
	"time"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// RelationRepo implements RelationRepository using PostgreSQL.
type RelationRepo struct{ db *DB }

// NewRelationRepo constructs a relation repository.
func NewRelationRepo(db *DB) *RelationRepo { return &RelationRepo{db: db} }

const (
	insertLikeSQL  = `INSERT INTO likes (from_id, to_id, created_at) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`
	likeExistsSQL  = `SELECT EXISTS (SELECT 1 FROM likes WHERE from_id=$1 AND to_id=$2)`
	mutualLikesSQL = `SELECT count(*) FROM likes WHERE (from_id=$1 AND to_id=$2) OR (from_id=$2 AND to_id=$1)`
	insertMatchSQL = `
INSERT INTO matches (owner_id, peer_id, created_at) VALUES ($1,$2,$3), ($2,$1,$3)
ON CONFLICT DO NOTHING`
	matchExistsSQL = `SELECT EXISTS (SELECT 1 FROM matches WHERE owner_id=$1 AND peer_id=$2)`
)

func blockedTx(ctx context.Context, tx pgx.Tx, a, b uuid.UUID) (bool, error) {
	var blocked bool
	err := tx.QueryRow(ctx, blockedEitherSQL, a, b).Scan(&blocked)
	return blocked, err
}

// ensureMatch inserts both mirrors and reports whether any row was new.
func ensureMatch(ctx context.Context, tx pgx.Tx, a, b uuid.UUID, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, insertMatchSQL, a, b, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Like stores from->to and upgrades the pair to a match when the reverse edge exists.
func (r *RelationRepo) Like(ctx context.Context, from, to uuid.UUID, now time.Time) (model.LikeOutcome, error) {
	var out model.LikeOutcome
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, from, to); err != nil {
			return err
		}
		blocked, err := blockedTx(ctx, tx, from, to)
		if err != nil {
			return err
		}
		if blocked {
			out.Blocked = true
			return nil
		}
		if _, err := tx.Exec(ctx, insertLikeSQL, from, to, now); err != nil {
			return err
		}
		var reverse bool
		if err := tx.QueryRow(ctx, likeExistsSQL, to, from).Scan(&reverse); err != nil {
			return err
		}
		if !reverse {
			return nil
		}
		out.Mutual = true
		out.MatchCreated, err = ensureMatch(ctx, tx, from, to, now)
		return err
	})
	if err != nil {
		return model.LikeOutcome{}, err
	}
	return out, nil
}

// Unlike removes from->to unless the pair is already matched.
func (r *RelationRepo) Unlike(ctx context.Context, from, to uuid.UUID) error {
	const del = `DELETE FROM likes WHERE from_id=$1 AND to_id=$2`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var matched bool
		if err := tx.QueryRow(ctx, matchExistsSQL, from, to).Scan(&matched); err != nil {
			return err
		}
		if matched {
			return errs.ErrConflict
		}
		_, err := tx.Exec(ctx, del, from, to)
		return err
	})
}

// MatchIfMutual creates the match mirrors when both likes exist and no block does.
func (r *RelationRepo) MatchIfMutual(ctx context.Context, a, b uuid.UUID, now time.Time) (model.LikeOutcome, error) {
	var out model.LikeOutcome
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, a, b); err != nil {
			return err
		}
		blocked, err := blockedTx(ctx, tx, a, b)
		if err != nil {
			return err
		}
		if blocked {
			out.Blocked = true
			return nil
		}
		var n int64
		if err := tx.QueryRow(ctx, mutualLikesSQL, a, b).Scan(&n); err != nil {
			return err
		}
		if n < 2 {
			return nil
		}
		out.Mutual = true
		out.MatchCreated, err = ensureMatch(ctx, tx, a, b, now)
		return err
	})
	if err != nil {
		return model.LikeOutcome{}, err
	}
	return out, nil
}

// InsertBlock stores the directed block edge; repeating it is a no-op.
// It waits for in-flight likes and encounters of the pair so the purge
// that follows sees their rows.
func (r *RelationRepo) InsertBlock(ctx context.Context, from, to uuid.UUID, now time.Time) error {
	const q = `INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, from, to); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, q, from, to, now)
		return err
	})
}

// DeleteBlock removes the directed block edge only.
func (r *RelationRepo) DeleteBlock(ctx context.Context, from, to uuid.UUID) error {
	const q = `DELETE FROM blocks WHERE blocker_id=$1 AND blocked_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, from, to)
	return err
}

// DeleteLike removes the directed like edge.
func (r *RelationRepo) DeleteLike(ctx context.Context, from, to uuid.UUID) error {
	const q = `DELETE FROM likes WHERE from_id=$1 AND to_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, from, to)
	return err
}

// DeleteMatch removes both match mirrors.
func (r *RelationRepo) DeleteMatch(ctx context.Context, a, b uuid.UUID) error {
	const q = `DELETE FROM matches WHERE (owner_id=$1 AND peer_id=$2) OR (owner_id=$2 AND peer_id=$1)`
	_, err := r.db.Pool.Exec(ctx, q, a, b)
	return err
}

// IsBlocked reports a block in either direction.
func (r *RelationRepo) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var v bool
	if err := r.db.Pool.QueryRow(ctx, blockedEitherSQL, a, b).Scan(&v); err != nil {
		return false, err
	}
	return v, nil
}

// IsMatched reports whether a holds a match mirror towards b.
func (r *RelationRepo) IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var v bool
	if err := r.db.Pool.QueryRow(ctx, matchExistsSQL, a, b).Scan(&v); err != nil {
		return false, err
	}
	return v, nil
}

// BlockedAmong returns the subset of peers blocked by or blocking owner.
func (r *RelationRepo) BlockedAmong(
	ctx context.Context, owner uuid.UUID, peers []uuid.UUID,
) (map[uuid.UUID]struct{}, error) {
	const q = `
SELECT blocked_id FROM blocks WHERE blocker_id=$1 AND blocked_id = ANY($2)
UNION
SELECT blocker_id FROM blocks WHERE blocked_id=$1 AND blocker_id = ANY($2)`
	return r.idSet(ctx, q, owner, peers)
}

// MatchedAmong returns the subset of peers matched with owner.
func (r *RelationRepo) MatchedAmong(
	ctx context.Context, owner uuid.UUID, peers []uuid.UUID,
) (map[uuid.UUID]struct{}, error) {
	const q = `SELECT peer_id FROM matches WHERE owner_id=$1 AND peer_id = ANY($2)`
	return r.idSet(ctx, q, owner, peers)
}

func (r *RelationRepo) idSet(
	ctx context.Context, q string, owner uuid.UUID, peers []uuid.UUID,
) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{})
	if len(peers) == 0 {
		return out, nil
	}
	rows, err := r.db.Pool.Query(ctx, q, owner, peers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// ListFriends returns matched peers without a block either way, joined
// with the owner's encounter mirror when one exists.
func (r *RelationRepo) ListFriends(ctx context.Context, owner uuid.UUID) ([]model.Friend, error) {
	const q = `
SELECT m.peer_id, m.created_at, e.last_encountered_at, COALESCE(e.occurrence_count, 0)
FROM matches m
LEFT JOIN encounters e ON e.owner_id=m.owner_id AND e.peer_id=m.peer_id
WHERE m.owner_id=$1
  AND NOT EXISTS (
    SELECT 1 FROM blocks b
    WHERE (b.blocker_id=$1 AND b.blocked_id=m.peer_id) OR (b.blocker_id=m.peer_id AND b.blocked_id=$1)
  )
ORDER BY m.created_at DESC, m.peer_id`
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Friend
	for rows.Next() {
		var f model.Friend
		if err = rows.Scan(&f.PeerID, &f.MatchedAt, &f.LastEncounteredAt, &f.OccurrenceCount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListBlocked returns identities blocked by owner, newest first.
func (r *RelationRepo) ListBlocked(ctx context.Context, owner uuid.UUID) ([]model.BlockedUser, error) {
	const q = `SELECT blocked_id, created_at FROM blocks WHERE blocker_id=$1 ORDER BY created_at DESC, blocked_id`
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedUser
	for rows.Next() {
		var b model.BlockedUser
		if err = rows.Scan(&b.PeerID, &b.BlockedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
