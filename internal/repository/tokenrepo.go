// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/passby/internal/model"
)

// TokenRepository stores ephemeral broadcast tokens keyed by digest.
type TokenRepository interface {
	// Issue stores t as the owner's only active token and returns the
	// digests of the tokens it replaced.
	Issue(ctx context.Context, t model.EphemeralToken) (replaced [][]byte, err error)
	// Lookup returns the token row for hash, expired or not.
	Lookup(ctx context.Context, hash []byte) (model.EphemeralToken, error)
	// DeleteExpired removes at most limit tokens with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}
