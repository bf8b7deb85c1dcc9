package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/and161185/passby/internal/errs"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier([]byte("secret"), clockwork.NewFakeClockAt(t0))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifier_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := NewVerifier(nil, clockwork.NewFakeClock()); err == nil {
		t.Fatalf("want error on empty key")
	}
}

func TestVerify_Valid(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	sub := uuid.Must(uuid.NewV4())
	id, err := v.Verify(makeJWT(t, sub.String(), []byte("secret"), jwt.SigningMethodHS256, t0.Add(-time.Minute), 10*time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != sub {
		t.Fatalf("uuid mismatch: %s vs %s", id, sub)
	}
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	sub := uuid.Must(uuid.NewV4()).String()
	key := []byte("secret")

	cases := map[string]string{
		"expired":     makeJWT(t, sub, key, jwt.SigningMethodHS256, t0.Add(-2*time.Hour), time.Hour),
		"not yet":     makeJWT(t, sub, key, jwt.SigningMethodHS256, t0.Add(time.Hour), time.Hour),
		"wrong alg":   makeJWT(t, sub, key, jwt.SigningMethodHS384, t0, time.Hour),
		"wrong key":   makeJWT(t, sub, []byte("other"), jwt.SigningMethodHS256, t0, time.Hour),
		"bad subject": makeJWT(t, "not-a-uuid", key, jwt.SigningMethodHS256, t0, time.Hour),
		"garbage":     "abc.def.ghi",
	}
	for name, tok := range cases {
		if _, err := v.Verify(tok); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestVerify_LeewayAcceptsSmallSkew(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	sub := uuid.Must(uuid.NewV4())
	tok := makeJWT(t, sub.String(), []byte("secret"), jwt.SigningMethodHS256, t0.Add(-time.Hour-10*time.Second), time.Hour)
	if _, err := v.Verify(tok); err != nil {
		t.Fatalf("10s past expiry is inside leeway: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	got, err := BearerToken("Bearer abc.def.ghi")
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}
	if got, _ := BearerToken("  bearer   x  "); got != "x" {
		t.Fatalf("case-insensitive scheme: got %q", got)
	}
	for _, h := range []string{"", "Basic foo", "Bearer   "} {
		if _, err := BearerToken(h); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("%q: want ErrUnauthorized, got %v", h, err)
		}
	}
}
