package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/userclaims/internal/claims"
)

func TestTokenService_IssueTokens_Observability(t *testing.T) {
	ctx := context.Background()

	t.Run("successful issuance calls probe methods in correct order", func(t *testing.T) {
		// Setup
		fakeObs := NewFakeObserver(t)

		stubToken := &Token{
			Value:     "token-value",
			Type:      string(TokenTypeAccessToken),
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(1 * time.Hour),
		}

		issuer := &testIssuerStub{token: stubToken}
		registry := NewSimpleRegistry()
		registry.Register(TokenTypeAccessToken, issuer)

		service := NewTokenService("app.example.com", nil, nil, registry, fakeObs)

		// Execute
		req := &IssueRequest{
			Subject:    "user-123",
			Scope:      "openid profile",
			TokenTypes: []TokenType{TokenTypeAccessToken},
		}

		tokens, err := service.IssueTokens(ctx, req)

		// Verify business logic succeeded
		if err != nil {
			t.Fatalf("IssueTokens failed: %v", err)
		}
		if len(tokens) != 1 {
			t.Fatalf("expected 1 token, got %d", len(tokens))
		}

		// Verify observer saw probe started with correct parameters and method sequence
		p := fakeObs.AssertSingleProbe("TokenIssuanceStarted", map[string]any{
			"subject": "user-123",
			"scope":   "openid profile",
		})

		p.AssertProbeSequence(
			ProbeCall("TokenTypeIssuanceStarted", TokenTypeAccessToken),
			ProbeCall("TokenTypeIssuanceSucceeded", TokenTypeAccessToken, stubToken),
			"End",
		)
	})

	t.Run("issuer not found calls probe correctly", func(t *testing.T) {
		fakeObs := NewFakeObserver(t)
		registry := NewSimpleRegistry() // Empty registry - no issuers

		service := NewTokenService("app.example.com", nil, nil, registry, fakeObs)

		req := &IssueRequest{
			Subject:    "user-123",
			TokenTypes: []TokenType{TokenTypeIDToken},
		}

		_, err := service.IssueTokens(ctx, req)

		// Verify business logic failed as expected
		if err == nil {
			t.Fatal("expected error when issuer not found")
		}
		if !errors.Is(err, ErrIssuerNotFound) {
			t.Errorf("expected ErrIssuerNotFound, got %v", err)
		}

		p := fakeObs.AssertSingleProbe("TokenIssuanceStarted", nil)
		p.AssertProbeSequence(
			ProbeCall("TokenTypeIssuanceStarted", TokenTypeIDToken),
			ProbeCall("IssuerNotFound", TokenTypeIDToken, ErrorContaining("issuer not found")),
			"End",
		)
	})

	t.Run("token issuance failure calls probe correctly", func(t *testing.T) {
		fakeObs := NewFakeObserver(t)
		issueErr := errors.New("signing failed")
		issuer := &testIssuerStub{err: issueErr}

		registry := NewSimpleRegistry()
		registry.Register(TokenTypeAccessToken, issuer)

		service := NewTokenService("app.example.com", nil, nil, registry, fakeObs)

		req := &IssueRequest{
			Subject:    "user-123",
			TokenTypes: []TokenType{TokenTypeAccessToken},
		}

		_, err := service.IssueTokens(ctx, req)

		if err == nil {
			t.Fatal("expected error when token issuance fails")
		}

		p := fakeObs.AssertSingleProbe("TokenIssuanceStarted", nil)
		p.AssertProbeSequence(
			ProbeCall("TokenTypeIssuanceStarted", TokenTypeAccessToken),
			ProbeCall("TokenTypeIssuanceFailed", TokenTypeAccessToken, issueErr),
			"End",
		)
	})

	t.Run("multiple token types are observed independently", func(t *testing.T) {
		fakeObs := NewFakeObserver(t)

		token1 := &Token{Value: "token1", Type: string(TokenTypeAccessToken)}
		token2 := &Token{Value: "token2", Type: string(TokenTypeIDToken)}

		registry := NewSimpleRegistry()
		registry.Register(TokenTypeAccessToken, &testIssuerStub{token: token1})
		registry.Register(TokenTypeIDToken, &testIssuerStub{token: token2})

		service := NewTokenService("app.example.com", nil, nil, registry, fakeObs)

		req := &IssueRequest{
			Subject:    "user-123",
			TokenTypes: []TokenType{TokenTypeAccessToken, TokenTypeIDToken},
		}

		_, err := service.IssueTokens(ctx, req)
		if err != nil {
			t.Fatalf("IssueTokens failed: %v", err)
		}

		// Should have: (Started + Succeeded) * 2 + End = 5 calls
		p := fakeObs.AssertSingleProbe("TokenIssuanceStarted", nil)
		p.AssertProbeSequence(
			ProbeCall("TokenTypeIssuanceStarted", TokenTypeAccessToken),
			ProbeCall("TokenTypeIssuanceSucceeded", TokenTypeAccessToken, token1),
			ProbeCall("TokenTypeIssuanceStarted", TokenTypeIDToken),
			ProbeCall("TokenTypeIssuanceSucceeded", TokenTypeIDToken, token2),
			"End",
		)
	})

	t.Run("composite observer delegates to all observers", func(t *testing.T) {
		fakeObs1 := NewFakeObserver(t)
		fakeObs2 := NewFakeObserver(t)
		fakeObs3 := NewFakeObserver(t)

		composite := NewCompositeObserver(fakeObs1, fakeObs2, fakeObs3)

		stubToken := &Token{Value: "token1", Type: string(TokenTypeAccessToken)}
		registry := NewSimpleRegistry()
		registry.Register(TokenTypeAccessToken, &testIssuerStub{token: stubToken})

		service := NewTokenService("app.example.com", nil, nil, registry, composite)

		req := &IssueRequest{
			Subject:    "user-123",
			TokenTypes: []TokenType{TokenTypeAccessToken},
		}

		_, err := service.IssueTokens(ctx, req)
		if err != nil {
			t.Fatalf("IssueTokens failed: %v", err)
		}

		for i, fakeObs := range []*FakeObserver{fakeObs1, fakeObs2, fakeObs3} {
			fakeObs.AssertProbeCount(1)
			if len(fakeObs.Probes) == 0 {
				t.Errorf("observer %d did not create a probe", i+1)
				continue
			}
			p := fakeObs.Probes[0]
			p.AssertProbeSequence(
				ProbeCall("TokenTypeIssuanceStarted", TokenTypeAccessToken),
				ProbeCall("TokenTypeIssuanceSucceeded", TokenTypeAccessToken, stubToken),
				"End",
			)
		}
	})
}

func TestTokenService_IssueTokens_Mappers(t *testing.T) {
	ctx := context.Background()

	t.Run("one fetch per issuance across token types", func(t *testing.T) {
		source := &countingDataSource{name: "directory", data: `{"name":"Ada"}`}
		dataSources := NewDataSourceRegistry()
		dataSources.Register(source)

		reg, err := NewMapperRegistration("profile", &fetchingMapper{source: "directory"}, nil, AllTokenTypesSet)
		require.NoError(t, err)

		service := NewTokenService("app.example.com", dataSources, []*MapperRegistration{reg}, claimsIssuers(), nil)

		tokens, err := service.IssueTokens(ctx, &IssueRequest{
			Subject:    "42",
			TokenTypes: AllTokenTypes,
		})
		require.NoError(t, err)

		assert.Equal(t, int32(1), source.calls.Load())
		for _, tokenType := range AllTokenTypes {
			assert.Equal(t, `{"name":"Ada"}`, tokens[tokenType].Claims.GetString("profile"), tokenType)
		}
	})

	t.Run("each issuance fetches again", func(t *testing.T) {
		source := &countingDataSource{name: "directory", data: `{}`}
		dataSources := NewDataSourceRegistry()
		dataSources.Register(source)

		reg, err := NewMapperRegistration("profile", &fetchingMapper{source: "directory"}, nil, AllTokenTypesSet)
		require.NoError(t, err)

		service := NewTokenService("app.example.com", dataSources, []*MapperRegistration{reg}, claimsIssuers(), nil)

		for range 3 {
			_, err := service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: []TokenType{TokenTypeAccessToken}})
			require.NoError(t, err)
		}

		assert.Equal(t, int32(3), source.calls.Load())
	})

	t.Run("registration only applies to its token types", func(t *testing.T) {
		reg, err := NewMapperRegistration(
			"static",
			NewStubClaimMapper(claims.Claims{"department": "eng"}),
			nil,
			NewTokenTypeSet(TokenTypeAccessToken, TokenTypeUserInfo),
		)
		require.NoError(t, err)

		service := NewTokenService("app.example.com", nil, []*MapperRegistration{reg}, claimsIssuers(), nil)

		tokens, err := service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: AllTokenTypes})
		require.NoError(t, err)

		assert.Equal(t, "eng", tokens[TokenTypeAccessToken].Claims.GetString("department"))
		assert.False(t, tokens[TokenTypeIDToken].Claims.Has("department"))
		assert.Equal(t, "eng", tokens[TokenTypeUserInfo].Claims.GetString("department"))
	})

	t.Run("mappers merge in registration order", func(t *testing.T) {
		first, err := NewMapperRegistration("first", NewStubClaimMapper(claims.Claims{"a": "1", "b": "1"}), nil, AllTokenTypesSet)
		require.NoError(t, err)
		second, err := NewMapperRegistration("second", NewStubClaimMapper(claims.Claims{"b": "2"}), nil, AllTokenTypesSet)
		require.NoError(t, err)

		service := NewTokenService("app.example.com", nil, []*MapperRegistration{first, second}, claimsIssuers(), nil)

		tokens, err := service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: []TokenType{TokenTypeAccessToken}})
		require.NoError(t, err)

		assert.Equal(t, claims.Claims{"a": "1", "b": "2"}, tokens[TokenTypeAccessToken].Claims)
	})

	t.Run("mappers see the token type being built", func(t *testing.T) {
		reg, err := NewMapperRegistration("kind", NewTokenTypeClaimMapper("meta.kind"), nil, AllTokenTypesSet)
		require.NoError(t, err)

		service := NewTokenService("app.example.com", nil, []*MapperRegistration{reg}, claimsIssuers(), nil)

		tokens, err := service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: AllTokenTypes})
		require.NoError(t, err)

		for _, tokenType := range AllTokenTypes {
			meta, ok := tokens[tokenType].Claims["meta"].(map[string]any)
			require.True(t, ok, "missing meta claim for %s", tokenType)
			assert.Equal(t, string(tokenType), meta["kind"])
		}
	})

	t.Run("mapper failure fails the token type and names the mapper", func(t *testing.T) {
		mapErr := errors.New("bad expression")
		reg, err := NewMapperRegistration("broken", NewFailingClaimMapper(mapErr), nil, NewTokenTypeSet(TokenTypeIDToken))
		require.NoError(t, err)

		service := NewTokenService("app.example.com", nil, []*MapperRegistration{reg}, claimsIssuers(), nil)

		_, err = service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: []TokenType{TokenTypeAccessToken}})
		require.NoError(t, err)

		_, err = service.IssueTokens(ctx, &IssueRequest{Subject: "42", TokenTypes: []TokenType{TokenTypeIDToken}})
		require.ErrorIs(t, err, mapErr)
		assert.ErrorContains(t, err, "mapper broken")
	})
}

func TestNewMapperRegistration(t *testing.T) {
	descriptor := testDescriptor{capabilities: NewTokenTypeSet(TokenTypeAccessToken, TokenTypeIDToken)}
	mapper := NewStubClaimMapper(nil)

	t.Run("subset of capabilities", func(t *testing.T) {
		reg, err := NewMapperRegistration("m", mapper, descriptor, NewTokenTypeSet(TokenTypeIDToken))
		require.NoError(t, err)

		assert.Equal(t, "test-mapper", reg.ProviderID)
		assert.True(t, reg.AppliesTo(TokenTypeIDToken))
		assert.False(t, reg.AppliesTo(TokenTypeAccessToken))
	})

	t.Run("empty include set", func(t *testing.T) {
		_, err := NewMapperRegistration("m", mapper, descriptor, 0)
		assert.ErrorContains(t, err, "at least one token type")
	})

	t.Run("beyond capabilities", func(t *testing.T) {
		_, err := NewMapperRegistration("m", mapper, descriptor, NewTokenTypeSet(TokenTypeUserInfo))
		assert.ErrorContains(t, err, "cannot be included in userinfo")
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := NewMapperRegistration("", mapper, descriptor, AllTokenTypesSet)
		assert.Error(t, err)
	})
}

func TestTokenTypeSet(t *testing.T) {
	set := NewTokenTypeSet(TokenTypeUserInfo, TokenTypeAccessToken)

	assert.True(t, set.Has(TokenTypeAccessToken))
	assert.False(t, set.Has(TokenTypeIDToken))
	assert.True(t, set.Has(TokenTypeUserInfo))
	assert.False(t, set.Has(TokenType("refresh_token")))
	assert.Equal(t, []TokenType{TokenTypeAccessToken, TokenTypeUserInfo}, set.Types())
	assert.Equal(t, "access_token,userinfo", set.String())
	assert.True(t, AllTokenTypesSet.Contains(set))
	assert.False(t, set.Contains(AllTokenTypesSet))
	assert.True(t, TokenTypeSet(0).IsEmpty())

	parsed, err := ParseTokenTypeSet([]string{"id_token", " access_token "})
	require.NoError(t, err)
	assert.Equal(t, NewTokenTypeSet(TokenTypeAccessToken, TokenTypeIDToken), parsed)

	_, err = ParseTokenTypeSet([]string{"refresh_token"})
	assert.ErrorContains(t, err, "unknown token type")
}

func TestScopedDataSources(t *testing.T) {
	ctx := context.Background()

	t.Run("memoizes per source and user", func(t *testing.T) {
		source := &countingDataSource{name: "directory", data: "{}"}
		registry := NewDataSourceRegistry()
		registry.Register(source)

		scope := registry.Scope()
		for range 3 {
			_, err := scope.Fetch(ctx, "directory", &DataSourceInput{UserID: "42"})
			require.NoError(t, err)
		}
		_, err := scope.Fetch(ctx, "directory", &DataSourceInput{UserID: "43"})
		require.NoError(t, err)

		assert.Equal(t, int32(2), source.calls.Load())
	})

	t.Run("memoizes errors", func(t *testing.T) {
		source := &countingDataSource{name: "directory", err: errors.New("connection refused")}
		registry := NewDataSourceRegistry()
		registry.Register(source)

		scope := registry.Scope()
		_, err1 := scope.Fetch(ctx, "directory", &DataSourceInput{UserID: "42"})
		_, err2 := scope.Fetch(ctx, "directory", &DataSourceInput{UserID: "42"})

		assert.Error(t, err1)
		assert.Equal(t, err1, err2)
		assert.Equal(t, int32(1), source.calls.Load())
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := NewDataSourceRegistry().Scope().Fetch(ctx, "missing", nil)
		assert.ErrorIs(t, err, ErrDataSourceNotFound)
	})
}

func TestSimpleRegistry_GetAllPublicKeys(t *testing.T) {
	shared := []PublicKey{{KeyID: "k1", Algorithm: "ES256"}}

	registry := NewSimpleRegistry()
	registry.Register(TokenTypeAccessToken, &testIssuerStub{keys: shared})
	registry.Register(TokenTypeIDToken, &testIssuerStub{keys: shared})
	registry.Register(TokenTypeUserInfo, &testIssuerStub{})

	keys, err := registry.GetAllPublicKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, shared, keys)
	assert.Equal(t, AllTokenTypes, registry.ListTokenTypes())

	registry.Register(TokenTypeUserInfo, &testIssuerStub{keysErr: errors.New("kms down")})
	keys, err = registry.GetAllPublicKeys(context.Background())
	assert.ErrorContains(t, err, "kms down")
	assert.Equal(t, shared, keys)
}

// testIssuerStub is a simple stub issuer for testing
type testIssuerStub struct {
	token   *Token
	err     error
	keys    []PublicKey
	keysErr error
}

func (i *testIssuerStub) Issue(ctx context.Context, issueCtx *IssueContext) (*Token, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.token, nil
}

func (i *testIssuerStub) PublicKeys(ctx context.Context) ([]PublicKey, error) {
	return i.keys, i.keysErr
}

// claimsIssuerStub returns the mapped claims as the token
type claimsIssuerStub struct {
	tokenType TokenType
}

func (i *claimsIssuerStub) Issue(ctx context.Context, issueCtx *IssueContext) (*Token, error) {
	c, err := issueCtx.ToClaims(ctx, i.tokenType)
	if err != nil {
		return nil, err
	}
	return &Token{Type: string(i.tokenType), Claims: c}, nil
}

func (i *claimsIssuerStub) PublicKeys(ctx context.Context) ([]PublicKey, error) {
	return nil, nil
}

func claimsIssuers() *SimpleRegistry {
	registry := NewSimpleRegistry()
	for _, tokenType := range AllTokenTypes {
		registry.Register(tokenType, &claimsIssuerStub{tokenType: tokenType})
	}
	return registry
}

type countingDataSource struct {
	name  string
	data  string
	err   error
	calls atomic.Int32
}

func (d *countingDataSource) Name() string { return d.name }

func (d *countingDataSource) Fetch(ctx context.Context, input *DataSourceInput) (*DataSourceResult, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return &DataSourceResult{StatusCode: 200, Data: []byte(d.data), ContentType: ContentTypeJSON}, nil
}

// fetchingMapper writes the raw data source payload to the "profile" claim
type fetchingMapper struct {
	source string
}

func (m *fetchingMapper) Map(ctx context.Context, input *MapperInput) (claims.Claims, error) {
	result, err := input.DataSources.Fetch(ctx, m.source, input.DataSourceInput)
	if err != nil || result == nil {
		return nil, err
	}
	return claims.Claims{"profile": string(result.Data)}, nil
}

type testDescriptor struct {
	capabilities TokenTypeSet
}

func (d testDescriptor) ProviderID() string         { return "test-mapper" }
func (d testDescriptor) Capabilities() TokenTypeSet { return d.capabilities }
