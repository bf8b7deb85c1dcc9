// Package service contains the application services of the encounter
// and relationship core.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/crypto"
	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

// DefaultTokenTTL is the validity of an issued broadcast token.
const DefaultTokenTTL = 6 * time.Minute

// RegistryService issues and resolves ephemeral broadcast tokens.
type RegistryService interface {
	// Issue binds token to owner and returns the server-computed expiry.
	Issue(ctx context.Context, owner uuid.UUID, token string) (time.Time, error)
	// Resolve returns the owner of a valid token or errs.ErrNotFound.
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// TokenCache is a best-effort resolution cache.
type TokenCache interface {
	Get(ctx context.Context, hash []byte) (uuid.UUID, bool, error)
	Put(ctx context.Context, hash []byte, owner uuid.UUID, ttl time.Duration) error
	Evict(ctx context.Context, hashes ...[]byte) error
}

type noCache struct{}

func (noCache) Get(context.Context, []byte) (uuid.UUID, bool, error)        { return uuid.Nil, false, nil }
func (noCache) Put(context.Context, []byte, uuid.UUID, time.Duration) error { return nil }
func (noCache) Evict(context.Context, ...[]byte) error                      { return nil }

type RegistryServiceImpl struct {
	repo   repository.TokenRepository
	digest *crypto.Digester
	cache  TokenCache
	clock  clockwork.Clock
	ttl    time.Duration
	log    *zap.Logger
}

// NewRegistryService constructs RegistryService. A nil cache disables caching.
func NewRegistryService(
	repo repository.TokenRepository, digest *crypto.Digester, cache TokenCache,
	clock clockwork.Clock, ttl time.Duration, log *zap.Logger,
) *RegistryServiceImpl {
	if cache == nil {
		cache = noCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &RegistryServiceImpl{repo: repo, digest: digest, cache: cache, clock: clock, ttl: ttl, log: log}
}

// Issue stores the token for TTL from now; any earlier token of the owner stops resolving.
func (s *RegistryServiceImpl) Issue(ctx context.Context, owner uuid.UUID, token string) (time.Time, error) {
	if owner == uuid.Nil {
		return time.Time{}, fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	if token == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", errs.ErrValidation)
	}
	now := s.clock.Now()
	hash := s.digest.Sum(token)
	t := model.EphemeralToken{Hash: hash, OwnerID: owner, IssuedAt: now, ExpiresAt: now.Add(s.ttl)}

	replaced, err := s.repo.Issue(ctx, t)
	if err != nil {
		return time.Time{}, err
	}
	// the digest itself may be cached for a previous owner
	if err := s.cache.Evict(ctx, append(replaced, hash)...); err != nil {
		s.log.Warn("token cache evict", zap.Int("count", len(replaced)+1), zap.Error(err))
	}
	return t.ExpiresAt, nil
}

// Resolve maps a token to its owner. Misses are never cached.
func (s *RegistryServiceImpl) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, errs.ErrNotFound
	}
	hash := s.digest.Sum(token)

	owner, ok, err := s.cache.Get(ctx, hash)
	switch {
	case err != nil:
		s.log.Warn("token cache get", zap.Error(err))
	case ok:
		return owner, nil
	}

	t, err := s.repo.Lookup(ctx, hash)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.clock.Now()
	if !t.Valid(now) {
		return uuid.Nil, errs.ErrNotFound
	}
	if err := s.cache.Put(ctx, hash, t.OwnerID, t.ExpiresAt.Sub(now)); err != nil {
		s.log.Warn("token cache put", zap.Error(err))
	}
	return t.OwnerID, nil
}
