package service

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/request"
)

// IssueContext contains the base information needed to mint any token
type IssueContext struct {
	// Subject is the identifier of the user the token is issued to (sub claim)
	Subject string

	// RequestAttributes contains information about the request
	RequestAttributes *request.RequestAttributes

	// Audience for the token (aud claim)
	Audience string

	// Scope for the token (scope claim)
	Scope string

	// Mappers are the registered claim mappers, in application order
	Mappers []*MapperRegistration

	// DataSources fetches from data sources, shared by every token of this issuance
	DataSources *ScopedDataSources
}

// ToClaims applies the registered mappers that apply to tokenType and merges
// their claims in registration order
func (ic *IssueContext) ToClaims(ctx context.Context, tokenType TokenType) (claims.Claims, error) {
	mapperInput := &MapperInput{
		Subject:           ic.Subject,
		TokenType:         tokenType,
		RequestAttributes: ic.RequestAttributes,
		DataSources:       ic.DataSources,
		DataSourceInput: &DataSourceInput{
			UserID:            ic.Subject,
			RequestAttributes: ic.RequestAttributes,
		},
	}

	result := make(claims.Claims)
	for _, registration := range ic.Mappers {
		if !registration.AppliesTo(tokenType) {
			continue
		}
		mapperClaims, err := registration.Mapper.Map(ctx, mapperInput)
		if err != nil {
			return nil, fmt.Errorf("mapper %s: %w", registration.Name, err)
		}
		result.Merge(mapperClaims)
	}

	return result, nil
}

// PublicKey represents a public key for token verification
type PublicKey struct {
	// KeyID is the unique identifier for this key (kid)
	KeyID string

	// Algorithm is the signing algorithm (e.g., "RS256", "ES256", "EdDSA")
	Algorithm string

	// Key is the actual public key material
	// Typically: *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey
	Key crypto.PublicKey

	// Use indicates the intended use of the key (e.g., "sig" for signature)
	Use string
}

// Issuer creates tokens from issue context
// The issuer is responsible for applying mappers, cryptographic operations, and token formatting
type Issuer interface {
	// Issue creates a token from the provided context
	Issue(ctx context.Context, issueCtx *IssueContext) (*Token, error)

	// PublicKeys returns the set of public keys for verifying tokens issued by this issuer
	// Returns an empty slice for unsigned responses such as user-info
	PublicKeys(ctx context.Context) ([]PublicKey, error)
}

// Token represents an issued token or user-info document
type Token struct {
	// Value is the encoded token (a JWT, or a JSON document for user-info)
	Value string

	// Type is the media or token type URN of Value
	Type string

	// Claims are the claims encoded in Value
	Claims claims.Claims

	// ExpiresAt is when the token expires, zero if it does not
	ExpiresAt time.Time

	// IssuedAt is when the token was issued
	IssuedAt time.Time
}
