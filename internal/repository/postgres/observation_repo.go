package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/jackc/pgx/v5"
)

// ObservationRepo implements ObservationRepository using PostgreSQL.
type ObservationRepo struct{ db *DB }

// NewObservationRepo constructs an observation repository.
func NewObservationRepo(db *DB) *ObservationRepo { return &ObservationRepo{db: db} }

const (
	touchForwardSQL = `
INSERT INTO observation_pairs (first_id, second_id, last_first_to_second)
VALUES ($1,$2,$3)
ON CONFLICT (first_id, second_id)
DO UPDATE SET last_first_to_second=EXCLUDED.last_first_to_second
RETURNING last_first_to_second, last_second_to_first, last_confirmed_at`

	touchBackwardSQL = `
INSERT INTO observation_pairs (first_id, second_id, last_second_to_first)
VALUES ($1,$2,$3)
ON CONFLICT (first_id, second_id)
DO UPDATE SET last_second_to_first=EXCLUDED.last_second_to_first
RETURNING last_first_to_second, last_second_to_first, last_confirmed_at`
)

// Touch records one sighting direction and returns the merged row.
func (r *ObservationRepo) Touch(
	ctx context.Context, p model.Pair, forward bool, at time.Time,
) (model.ObservationPair, error) {
	q := touchBackwardSQL
	if forward {
		q = touchForwardSQL
	}
	out := model.ObservationPair{Pair: p}
	row := r.db.Pool.QueryRow(ctx, q, p.First, p.Second, at)
	if err := row.Scan(&out.FirstToSecond, &out.SecondToFirst, &out.LastConfirmedAt); err != nil {
		return model.ObservationPair{}, err
	}
	return out, nil
}

// Confirm stamps last_confirmed_at under a row lock if the pair is still
// outside its cooldown.
func (r *ObservationRepo) Confirm(
	ctx context.Context, p model.Pair, now time.Time, cooldown time.Duration,
) (ok bool, err error) {
	const sel = `SELECT last_confirmed_at FROM observation_pairs WHERE first_id=$1 AND second_id=$2 FOR UPDATE`
	const upd = `UPDATE observation_pairs SET last_confirmed_at=$3 WHERE first_id=$1 AND second_id=$2`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur := model.ObservationPair{Pair: p}
		if err := tx.QueryRow(ctx, sel, p.First, p.Second).Scan(&cur.LastConfirmedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if !cur.Actable(now, cooldown) {
			return nil
		}
		if _, err := tx.Exec(ctx, upd, p.First, p.Second, now); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		if IsTransient(err) {
			return false, fmt.Errorf("%w: %w", errs.ErrTransient, err)
		}
		return false, err
	}
	return ok, nil
}

// Release undoes a confirmation stamp whose encounter could not be recorded.
// A later confirmation has replaced the stamp when no row matches; that is not an error.
func (r *ObservationRepo) Release(
	ctx context.Context, p model.Pair, stampedAt time.Time, previous *time.Time,
) error {
	const q = `
UPDATE observation_pairs SET last_confirmed_at=$4
WHERE first_id=$1 AND second_id=$2 AND last_confirmed_at=$3`
	if _, err := r.db.Pool.Exec(ctx, q, p.First, p.Second, stampedAt, previous); err != nil {
		return fmt.Errorf("release confirmation: %w", err)
	}
	return nil
}
