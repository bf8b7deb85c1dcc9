package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// EncounterRepo implements EncounterRepository using PostgreSQL.
type EncounterRepo struct{ db *DB }

// NewEncounterRepo constructs an encounter repository.
func NewEncounterRepo(db *DB) *EncounterRepo { return &EncounterRepo{db: db} }

const blockedEitherSQL = `
SELECT EXISTS (
  SELECT 1 FROM blocks
  WHERE (blocker_id=$1 AND blocked_id=$2) OR (blocker_id=$2 AND blocked_id=$1)
)`

// Record bumps both mirrors to max(count)+1 under the pair lock, so
// concurrent records of a new pair cannot both start from zero.
func (r *EncounterRepo) Record(
	ctx context.Context, a, b uuid.UUID, now time.Time, ttl time.Duration,
) (count int64, recorded bool, err error) {
	const lock = `
SELECT occurrence_count FROM encounters
WHERE (owner_id=$1 AND peer_id=$2) OR (owner_id=$2 AND peer_id=$1)
ORDER BY owner_id
FOR UPDATE`
	const ups = `
INSERT INTO encounters (owner_id, peer_id, last_encountered_at, expires_at, occurrence_count)
VALUES ($1,$2,$3,$4,$5), ($2,$1,$3,$4,$5)
ON CONFLICT (owner_id, peer_id)
DO UPDATE SET last_encountered_at=EXCLUDED.last_encountered_at,
              expires_at=EXCLUDED.expires_at,
              occurrence_count=EXCLUDED.occurrence_count`

	p, _ := model.Canonical(a, b)
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, p.First, p.Second); err != nil {
			return err
		}
		var blocked bool
		if err := tx.QueryRow(ctx, blockedEitherSQL, p.First, p.Second).Scan(&blocked); err != nil {
			return err
		}
		if blocked {
			return nil
		}

		rows, err := tx.Query(ctx, lock, p.First, p.Second)
		if err != nil {
			return err
		}
		var highest int64
		for rows.Next() {
			var c int64
			if err := rows.Scan(&c); err != nil {
				rows.Close()
				return err
			}
			highest = max(highest, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		count = highest + 1
		if _, err := tx.Exec(ctx, ups, p.First, p.Second, now, now.Add(ttl), count); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return count, recorded, nil
}

// Recent lists the owner's rows newest first with peer_id as tie-break.
func (r *EncounterRepo) Recent(ctx context.Context, owner uuid.UUID, limit int) ([]model.Encounter, error) {
	const q = `
SELECT owner_id, peer_id, last_encountered_at, expires_at, occurrence_count
FROM encounters
WHERE owner_id=$1
ORDER BY last_encountered_at DESC, peer_id ASC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Encounter
	for rows.Next() {
		var e model.Encounter
		if err = rows.Scan(&e.OwnerID, &e.PeerID, &e.LastEncounteredAt, &e.ExpiresAt, &e.OccurrenceCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteBetween removes both mirrors of the pair in a single statement.
func (r *EncounterRepo) DeleteBetween(ctx context.Context, a, b uuid.UUID) error {
	const q = `DELETE FROM encounters WHERE (owner_id=$1 AND peer_id=$2) OR (owner_id=$2 AND peer_id=$1)`
	_, err := r.db.Pool.Exec(ctx, q, a, b)
	return err
}

// DeleteStale deletes one batch of rows older than cutoff. The batch is
// bounded by a transaction-local statement_timeout; without a usable
// index the statement is cancelled with SQLSTATE 57014.
func (r *EncounterRepo) DeleteStale(
	ctx context.Context, cutoff time.Time, limit int, timeout time.Duration,
) (n int64, err error) {
	const set = `SELECT set_config('statement_timeout', $1, true)`
	const del = `
DELETE FROM encounters
WHERE (owner_id, peer_id) IN (
  SELECT owner_id, peer_id FROM encounters WHERE last_encountered_at < $1 LIMIT $2
)`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, set, strconv.FormatInt(timeout.Milliseconds(), 10)); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, del, cutoff, limit)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		if IsStatementTimeout(err) {
			return 0, fmt.Errorf("%w: %w", errs.ErrTimeout, err)
		}
		return 0, err
	}
	return n, nil
}

// OwnersAfter pages distinct owners in uuid order.
func (r *EncounterRepo) OwnersAfter(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error) {
	const q = `SELECT DISTINCT owner_id FROM encounters WHERE owner_id > $1 ORDER BY owner_id LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteStaleForOwner deletes one batch of the owner's stale rows.
func (r *EncounterRepo) DeleteStaleForOwner(
	ctx context.Context, owner uuid.UUID, cutoff time.Time, limit int,
) (int64, error) {
	const q = `
DELETE FROM encounters
WHERE owner_id=$1 AND peer_id IN (
  SELECT peer_id FROM encounters WHERE owner_id=$1 AND last_encountered_at < $2 LIMIT $3
)`
	tag, err := r.db.Pool.Exec(ctx, q, owner, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
