// Package security holds the cryptographic primitives shared by the sealer
// and the ledger, plus request rate limiting for the API.
package security

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Cryptographic errors
var (
	ErrInsufficientEntropy = errors.New("security: insufficient entropy")
	ErrWeakKey             = errors.New("security: key is too weak")
	ErrInvalidKeySize      = errors.New("security: invalid key size")
)

// MinKeySize is the minimum allowed key size in bytes.
const MinKeySize = 16 // 128 bits

// RecommendedKeySize is the recommended key size in bytes.
const RecommendedKeySize = 32 // 256 bits

// GenerateSecureRandom fills the given slice from crypto/rand.
func GenerateSecureRandom(data []byte) error {
	return ReadSecureRandom(rand.Reader, data)
}

// ReadSecureRandom fills data from r, failing on any short read.
func ReadSecureRandom(r io.Reader, data []byte) error {
	n, err := io.ReadFull(r, data)
	if err != nil {
		return fmt.Errorf("%w: only got %d of %d bytes: %v", ErrInsufficientEntropy, n, len(data), err)
	}
	return nil
}

// GenerateKey generates a cryptographically secure random key.
func GenerateKey(size int) ([]byte, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	key := make([]byte, size)
	if err := GenerateSecureRandom(key); err != nil {
		return nil, err
	}

	return key, nil
}

// DeriveKey derives a key using HKDF with SHA-512.
func DeriveKey(masterKey, salt, info []byte, keySize int) ([]byte, error) {
	if len(masterKey) < MinKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, minimum %d required",
			ErrWeakKey, len(masterKey), MinKeySize)
	}

	if keySize < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	reader := hkdf.New(sha512.New, masterKey, salt, info)

	derivedKey := make([]byte, keySize)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	return derivedKey, nil
}

// DeriveKeyWithLabel derives a key with a domain separation label.
func DeriveKeyWithLabel(masterKey []byte, label string, keySize int) ([]byte, error) {
	return DeriveKey(masterKey, nil, []byte("verum:"+label), keySize)
}

// SecureCompare performs a constant-time comparison of two byte slices.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ValidateKeyStrength checks if a key meets minimum security requirements.
func ValidateKeyStrength(key []byte) error {
	if len(key) < MinKeySize {
		return fmt.Errorf("%w: key is %d bytes, minimum %d required",
			ErrWeakKey, len(key), MinKeySize)
	}

	allSame := true
	for _, b := range key {
		if b != key[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("%w: key is a single repeated byte", ErrWeakKey)
	}

	return nil
}

// Wipe zeroes data in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
