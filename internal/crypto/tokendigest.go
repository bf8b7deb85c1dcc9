// Package crypto derives the storage keys of broadcast tokens.
package crypto

import (
	"errors"

	"golang.org/x/crypto/blake2b"
)

// Digester maps a broadcast token to a keyed BLAKE2b-256 digest so the
// clear value never reaches storage or the cache.
type Digester struct {
	key []byte
}

// NewDigester returns a digester keyed with key (1..64 bytes).
func NewDigester(key []byte) (*Digester, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.New("crypto: digest key must be 1..64 bytes")
	}
	return &Digester{key: append([]byte(nil), key...)}, nil
}

// Sum returns the digest of token.
func (d *Digester) Sum(token string) []byte {
	h, _ := blake2b.New256(d.key) // key length checked in NewDigester
	h.Write([]byte(token))
	return h.Sum(nil)
}
