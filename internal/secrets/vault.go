package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// SecretSize is the width of generated secrets. Full 32-byte secrets with full
// SHA-256 commitments everywhere; narrower on-chain widths are not supported
// because a truncated commitment is brute-forceable.
const SecretSize = 32

var (
	ErrEmptyInput      = errors.New("secrets: empty input")
	ErrIndexOutOfRange = errors.New("secrets: index out of range")
)

// Secret is the preimage of a hashlock.
type Secret [SecretSize]byte

// Hash is a SHA-256 digest: a hashlock commitment, Merkle leaf or Merkle root.
type Hash [sha256.Size]byte

func (s Secret) Hex() string { return hex.EncodeToString(s[:]) }
func (h Hash) Hex() string   { return hex.EncodeToString(h[:]) }

// GenerateSecret returns a cryptographically random secret.
func GenerateSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("generate secret: %w", err)
	}
	return s, nil
}

// HashSecret is the hashlock commitment function. Both chains' contracts must
// reproduce exactly this digest or the swap cannot settle.
func HashSecret(s Secret) Hash {
	return sha256.Sum256(s[:])
}

// ParseSecret decodes a hex-encoded secret.
func ParseSecret(h string) (Secret, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return Secret{}, fmt.Errorf("parse secret: %w", err)
	}
	if len(b) != SecretSize {
		return Secret{}, fmt.Errorf("parse secret: want %d bytes, got %d", SecretSize, len(b))
	}
	var s Secret
	copy(s[:], b)
	return s, nil
}

// ParseHash decodes a hex-encoded digest.
func ParseHash(h string) (Hash, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return Hash{}, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != sha256.Size {
		return Hash{}, fmt.Errorf("parse hash: want %d bytes, got %d", sha256.Size, len(b))
	}
	var out Hash
	copy(out[:], b)
	return out, nil
}
