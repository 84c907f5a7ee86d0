// Package gwcrypto implements the gateway's three crypto primitives
// (C1): AEAD sealing for the device-id cookie, HMAC verification for
// request signatures, and Blake2b hashing for client IPs.
package gwcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// ErrBadDeviceId is returned by Open whenever the ciphertext cannot be
// decoded or authenticated. Decode and auth failures are deliberately
// collapsed into one sentinel: callers never learn which of the two
// happened.
var ErrBadDeviceId = errors.New("gwcrypto: bad device id")

// ErrInvalidSignature is returned by VerifyHMAC on any verification
// failure (bad base64, wrong length, mismatched tag).
var ErrInvalidSignature = errors.New("gwcrypto: invalid signature")

// Sealer seals and opens the device-id cookie under the process-wide
// secret. It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte AES-256 key. Callers load
// the key once at startup from the SECRET environment variable.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("gwcrypto: secret must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("gwcrypto: building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gwcrypto: building GCM AEAD: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts cleartext (the 36-byte device-id UUID string) under a
// fresh random nonce and returns base64(nonce || ciphertext || tag).
func (s *Sealer) Seal(cleartext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("gwcrypto: generating nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, []byte(cleartext), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any decode or authentication failure surfaces as
// ErrBadDeviceId.
func (s *Sealer) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrBadDeviceId
	}
	if len(raw) < nonceSize+tagSize {
		return "", ErrBadDeviceId
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	cleartext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrBadDeviceId
	}
	return string(cleartext), nil
}

// VerifyHMAC base64-decodes sigB64 and constant-time compares it
// against a fresh HMAC-SHA512 of data under key.
func VerifyHMAC(key, data []byte, sigB64 string) error {
	given, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	want := mac.Sum(nil)
	if subtle.ConstantTimeCompare(given, want) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// HashIP returns base64(Blake2b-512(raw)), used to pseudonymize client
// IPs before they leave the gateway.
func HashIP(raw string) (string, error) {
	sum := blake2b.Sum512([]byte(raw))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
