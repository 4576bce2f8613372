package service

import (
	"fmt"
	"strings"
)

// TokenType identifies the type of token being issued
type TokenType string

const (
	// TokenTypeAccessToken is an OAuth2 access token
	TokenTypeAccessToken TokenType = "access_token"

	// TokenTypeIDToken is an OpenID Connect ID token
	TokenTypeIDToken TokenType = "id_token"

	// TokenTypeUserInfo is the OpenID Connect user-info response
	TokenTypeUserInfo TokenType = "userinfo"
)

// AllTokenTypes lists every token type in issuance order
var AllTokenTypes = []TokenType{TokenTypeAccessToken, TokenTypeIDToken, TokenTypeUserInfo}

// ParseTokenType parses a token type name
func ParseTokenType(s string) (TokenType, error) {
	switch t := TokenType(strings.TrimSpace(s)); t {
	case TokenTypeAccessToken, TokenTypeIDToken, TokenTypeUserInfo:
		return t, nil
	default:
		return "", fmt.Errorf("unknown token type: %q", s)
	}
}

func (t TokenType) flag() TokenTypeSet {
	switch t {
	case TokenTypeAccessToken:
		return accessTokenFlag
	case TokenTypeIDToken:
		return idTokenFlag
	case TokenTypeUserInfo:
		return userInfoFlag
	default:
		return 0
	}
}

// TokenTypeSet is a set of token types, represented as bit flags.
// It declares which token types a claim mapper can contribute to and which
// ones a registration applies to.
type TokenTypeSet uint8

const (
	accessTokenFlag TokenTypeSet = 1 << iota
	idTokenFlag
	userInfoFlag
)

// AllTokenTypesSet contains every token type
const AllTokenTypesSet = accessTokenFlag | idTokenFlag | userInfoFlag

// NewTokenTypeSet creates a set from token types. Unknown types are ignored.
func NewTokenTypeSet(types ...TokenType) TokenTypeSet {
	var s TokenTypeSet
	for _, t := range types {
		s |= t.flag()
	}
	return s
}

// ParseTokenTypeSet parses token type names into a set
func ParseTokenTypeSet(names []string) (TokenTypeSet, error) {
	var s TokenTypeSet
	for _, name := range names {
		t, err := ParseTokenType(name)
		if err != nil {
			return 0, err
		}
		s |= t.flag()
	}
	return s, nil
}

// Has reports whether t is in the set
func (s TokenTypeSet) Has(t TokenType) bool {
	f := t.flag()
	return f != 0 && s&f == f
}

// Contains reports whether every type in other is also in s
func (s TokenTypeSet) Contains(other TokenTypeSet) bool {
	return s&other == other
}

// IsEmpty reports whether the set has no token types
func (s TokenTypeSet) IsEmpty() bool {
	return s&AllTokenTypesSet == 0
}

// Types returns the token types in the set, in issuance order
func (s TokenTypeSet) Types() []TokenType {
	var types []TokenType
	for _, t := range AllTokenTypes {
		if s.Has(t) {
			types = append(types, t)
		}
	}
	return types
}

func (s TokenTypeSet) String() string {
	types := s.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

// Registry manages issuers by token type
type Registry interface {
	// GetIssuer returns an issuer for the specified token type
	GetIssuer(tokenType TokenType) (Issuer, error)

	// ListTokenTypes returns all registered token types
	ListTokenTypes() []TokenType
}
