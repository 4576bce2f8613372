package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/project-kessel/userclaims/internal/service"
)

// MemorySigner signs with a single key held in memory.
// The key is generated at start-up or loaded from a PEM file; its key ID is
// the RFC 7638 thumbprint of the public key.
type MemorySigner struct {
	signer    crypto.Signer
	keyID     KeyID
	algorithm Algorithm
}

// MemorySignerConfig configures a MemorySigner
type MemorySignerConfig struct {
	// KeyType is the type of key to generate (default EC-P256).
	// Ignored when PrivateKey is set.
	KeyType KeyType

	// Algorithm overrides the key type's default signing algorithm
	Algorithm Algorithm

	// PrivateKey is an existing key to sign with
	PrivateKey crypto.Signer
}

// NewMemorySigner creates a signer, generating a key unless one is supplied
func NewMemorySigner(cfg MemorySignerConfig) (*MemorySigner, error) {
	signer := cfg.PrivateKey
	keyType := cfg.KeyType
	if keyType == "" {
		keyType = KeyTypeECP256
	}

	if signer == nil {
		generated, err := generateKey(keyType)
		if err != nil {
			return nil, err
		}
		signer = generated
	} else {
		detected, err := keyTypeOf(signer)
		if err != nil {
			return nil, err
		}
		keyType = detected
	}

	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = keyType.DefaultAlgorithm()
	}

	thumbprint, err := ComputeThumbprint(signer.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to compute key ID: %w", err)
	}

	return &MemorySigner{
		signer:    signer,
		keyID:     KeyID(thumbprint),
		algorithm: algorithm,
	}, nil
}

// LoadPrivateKeyFile reads a PEM-encoded EC or RSA private key
func LoadPrivateKeyFile(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM parses a PEM-encoded EC or RSA private key
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	key, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export private key: %w", err)
	}

	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("PEM does not contain a private key (got %T)", raw)
	}
	return signer, nil
}

// GetCurrentSigner implements Signer
func (s *MemorySigner) GetCurrentSigner(ctx context.Context) (crypto.Signer, KeyID, Algorithm, error) {
	return s.signer, s.keyID, s.algorithm, nil
}

// PublicKeys implements Signer
func (s *MemorySigner) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return []service.PublicKey{{
		KeyID:     string(s.keyID),
		Algorithm: string(s.algorithm),
		Key:       s.signer.Public(),
		Use:       "sig",
	}}, nil
}

// KeyID returns the key ID of the signing key
func (s *MemorySigner) KeyID() KeyID {
	return s.keyID
}

func generateKey(keyType KeyType) (crypto.Signer, error) {
	var signer crypto.Signer
	var err error

	switch keyType {
	case KeyTypeECP256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyTypeECP384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case KeyTypeRSA2048:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	case KeyTypeRSA4096:
		signer, err = rsa.GenerateKey(rand.Reader, 4096)
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return signer, nil
}

func keyTypeOf(signer crypto.Signer) (KeyType, error) {
	switch key := signer.(type) {
	case *ecdsa.PrivateKey:
		switch key.Curve {
		case elliptic.P256():
			return KeyTypeECP256, nil
		case elliptic.P384():
			return KeyTypeECP384, nil
		}
		return "", fmt.Errorf("unsupported ECDSA curve: %s", key.Curve.Params().Name)
	case *rsa.PrivateKey:
		if key.N.BitLen() > 2048 {
			return KeyTypeRSA4096, nil
		}
		return KeyTypeRSA2048, nil
	default:
		return "", fmt.Errorf("unsupported key type: %T", signer)
	}
}
