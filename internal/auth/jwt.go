// Package auth verifies bearer credentials issued by the identity service.
// Credential issuance lives outside this module; only HS256 access tokens
// whose subject is the user UUID are accepted.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/and161185/passby/internal/errs"
)

// Leeway tolerates clock skew between the issuer and this service.
const Leeway = 30 * time.Second

// Verifier checks HS256 access tokens.
type Verifier struct {
	key   []byte
	clock clockwork.Clock
}

// NewVerifier constructs a verifier for the shared signing key.
func NewVerifier(key []byte, clock clockwork.Clock) (*Verifier, error) {
	if len(key) == 0 {
		return nil, errors.New("empty jwt signing key")
	}
	return &Verifier{key: append([]byte(nil), key...), clock: clock}, nil
}

// Verify validates tok and returns its subject as a user ID.
// Every failure wraps errs.ErrUnauthorized.
func (v *Verifier) Verify(tok string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) (string, error) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: no bearer token", errs.ErrUnauthorized)
}
