package service

import (
	"context"

	"github.com/project-kessel/userclaims/internal/claims"
)

// StubClaimMapper returns the same claims for every token
type StubClaimMapper struct {
	claims claims.Claims
}

// NewStubClaimMapper creates a new stub claim mapper
func NewStubClaimMapper(c claims.Claims) *StubClaimMapper {
	return &StubClaimMapper{
		claims: c,
	}
}

// Map implements the ClaimMapper interface
func (s *StubClaimMapper) Map(ctx context.Context, input *MapperInput) (claims.Claims, error) {
	return s.claims, nil
}

// FailingClaimMapper always fails with err
type FailingClaimMapper struct {
	err error
}

// NewFailingClaimMapper creates a mapper whose Map returns err
func NewFailingClaimMapper(err error) *FailingClaimMapper {
	return &FailingClaimMapper{err: err}
}

// Map implements the ClaimMapper interface
func (f *FailingClaimMapper) Map(ctx context.Context, input *MapperInput) (claims.Claims, error) {
	return nil, f.err
}

// TokenTypeClaimMapper writes the token type being built under a claim name
type TokenTypeClaimMapper struct {
	claimName string
}

// NewTokenTypeClaimMapper creates a mapper that records input.TokenType at claimName
func NewTokenTypeClaimMapper(claimName string) *TokenTypeClaimMapper {
	return &TokenTypeClaimMapper{claimName: claimName}
}

// Map implements the ClaimMapper interface
func (m *TokenTypeClaimMapper) Map(ctx context.Context, input *MapperInput) (claims.Claims, error) {
	result := make(claims.Claims)
	result.SetPath(m.claimName, string(input.TokenType))
	return result, nil
}
