package keys

import (
	"context"
	"crypto"
	"fmt"

	"github.com/project-kessel/userclaims/internal/service"
)

// KeyID is a unique identifier for a cryptographic key
type KeyID string

// Algorithm is a cryptographic algorithm identifier (e.g., "ES256", "RS256")
type Algorithm string

// Signer provides the key tokens are signed with
type Signer interface {
	// GetCurrentSigner returns the signing key with its key ID and algorithm.
	GetCurrentSigner(ctx context.Context) (signer crypto.Signer, keyID KeyID, alg Algorithm, err error)

	// PublicKeys returns the public keys tokens may be verified with.
	PublicKeys(ctx context.Context) ([]service.PublicKey, error)
}

// KeyType represents the cryptographic key type
type KeyType string

const (
	KeyTypeECP256  KeyType = "EC-P256"
	KeyTypeECP384  KeyType = "EC-P384"
	KeyTypeRSA2048 KeyType = "RSA-2048"
	KeyTypeRSA4096 KeyType = "RSA-4096"
)

// ParseKeyType parses a key type name. Empty means EC-P256.
func ParseKeyType(s string) (KeyType, error) {
	switch t := KeyType(s); t {
	case "":
		return KeyTypeECP256, nil
	case KeyTypeECP256, KeyTypeECP384, KeyTypeRSA2048, KeyTypeRSA4096:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported key type: %s", s)
	}
}

// DefaultAlgorithm returns the signing algorithm used with keys of this type
func (t KeyType) DefaultAlgorithm() Algorithm {
	switch t {
	case KeyTypeECP384:
		return "ES384"
	case KeyTypeRSA2048, KeyTypeRSA4096:
		return "RS256"
	default:
		return "ES256"
	}
}
