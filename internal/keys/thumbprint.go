package keys

import (
	"crypto"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// ComputeThumbprint computes the RFC 7638 JWK Thumbprint for a public key.
// Returns a base64url-encoded SHA-256 hash of the canonical JWK representation.
func ComputeThumbprint(publicKey crypto.PublicKey) (string, error) {
	key, err := jwk.Import(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key to JWK: %w", err)
	}

	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(sum), nil
}
