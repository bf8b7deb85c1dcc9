package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Issue replaces the owner's active token with t.
func (r *TokenRepo) Issue(ctx context.Context, t model.EphemeralToken) (replaced [][]byte, err error) {
	const del = `DELETE FROM ephemeral_tokens WHERE owner_id=$1 AND token_hash<>$2 RETURNING token_hash`
	const ups = `
INSERT INTO ephemeral_tokens (token_hash, owner_id, issued_at, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (token_hash)
DO UPDATE SET owner_id=EXCLUDED.owner_id, issued_at=EXCLUDED.issued_at, expires_at=EXCLUDED.expires_at`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, del, t.OwnerID, t.Hash)
		if err != nil {
			return err
		}
		for rows.Next() {
			var h []byte
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return err
			}
			replaced = append(replaced, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, ups, t.Hash, t.OwnerID, t.IssuedAt, t.ExpiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// Lookup returns the stored token by digest.
func (r *TokenRepo) Lookup(ctx context.Context, hash []byte) (model.EphemeralToken, error) {
	const q = `SELECT token_hash, owner_id, issued_at, expires_at FROM ephemeral_tokens WHERE token_hash=$1`
	var t model.EphemeralToken
	if err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&t.Hash, &t.OwnerID, &t.IssuedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EphemeralToken{}, errs.ErrNotFound
		}
		return model.EphemeralToken{}, err
	}
	return t, nil
}

// DeleteExpired removes one batch of expired tokens.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	const q = `
DELETE FROM ephemeral_tokens
WHERE token_hash IN (
  SELECT token_hash FROM ephemeral_tokens WHERE expires_at <= $1 LIMIT $2
)`
	tag, err := r.db.Pool.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
