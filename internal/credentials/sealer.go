package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrInvalidKey = errors.New("encryption key must be 32 bytes")

// ErrUnsealFailed means a sealed value was tampered with or sealed under a different key.
var ErrUnsealFailed = errors.New("credential could not be unsealed")

// Sealer encrypts credential values at rest with NaCl secretbox.
// A sealed value is the 24-byte nonce followed by the box.
type Sealer struct {
	key [keySize]byte
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(out), nil
}
