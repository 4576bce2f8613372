package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/service"
)

func TestJWKSHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty JWKS when no issuers configured", func(t *testing.T) {
		handler := NewJWKSHandler(JWKSHandlerConfig{
			KeySource: service.NewSimpleRegistry(),
			Logger:    slog.Default(),
		})

		set := fetchJWKS(t, handler)
		if set.Len() != 0 {
			t.Errorf("expected 0 keys, got %d", set.Len())
		}
	})

	t.Run("returns public keys from configured issuers", func(t *testing.T) {
		privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}

		registry := service.NewSimpleRegistry()
		registry.Register(service.TokenTypeAccessToken, &testIssuerWithKeys{
			publicKeys: []service.PublicKey{
				{KeyID: "test-key-1", Algorithm: "ES256", Use: "sig", Key: &privateKey.PublicKey},
			},
		})

		handler := NewJWKSHandler(JWKSHandlerConfig{KeySource: registry})

		set := fetchJWKS(t, handler)
		if set.Len() != 1 {
			t.Fatalf("expected 1 key, got %d", set.Len())
		}

		key, _ := set.Key(0)
		if kid, _ := key.KeyID(); kid != "test-key-1" {
			t.Errorf("expected kid 'test-key-1', got %q", kid)
		}
		if alg, _ := key.Algorithm(); alg.String() != "ES256" {
			t.Errorf("expected alg 'ES256', got %q", alg.String())
		}
		if use, _ := key.KeyUsage(); use != "sig" {
			t.Errorf("expected use 'sig', got %q", use)
		}
		if key.KeyType().String() != "EC" {
			t.Errorf("expected kty 'EC', got %q", key.KeyType().String())
		}

		var pub ecdsa.PublicKey
		if err := jwk.Export(key, &pub); err != nil {
			t.Fatalf("failed to export key: %v", err)
		}
		if !pub.Equal(&privateKey.PublicKey) {
			t.Error("exported key does not match issuer key")
		}
	})

	t.Run("deduplicates keys shared by several issuers", func(t *testing.T) {
		privateKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		shared := []service.PublicKey{
			{KeyID: "shared", Algorithm: "ES256", Use: "sig", Key: &privateKey.PublicKey},
		}

		registry := service.NewSimpleRegistry()
		registry.Register(service.TokenTypeAccessToken, &testIssuerWithKeys{publicKeys: shared})
		registry.Register(service.TokenTypeIDToken, &testIssuerWithKeys{publicKeys: shared})
		registry.Register(service.TokenTypeUserInfo, &testIssuerWithKeys{})

		handler := NewJWKSHandler(JWKSHandlerConfig{KeySource: registry})

		if set := fetchJWKS(t, handler); set.Len() != 1 {
			t.Errorf("expected 1 key, got %d", set.Len())
		}
	})

	t.Run("returns partial keys when some issuers fail", func(t *testing.T) {
		privateKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

		registry := service.NewSimpleRegistry()
		registry.Register(service.TokenTypeAccessToken, &testIssuerWithKeys{
			publicKeys: []service.PublicKey{
				{KeyID: "good-key", Algorithm: "ES256", Use: "sig", Key: &privateKey.PublicKey},
			},
		})
		registry.Register(service.TokenTypeIDToken, &testIssuerWithError{})

		handler := NewJWKSHandler(JWKSHandlerConfig{KeySource: registry})

		set := fetchJWKS(t, handler)
		if _, ok := set.LookupKeyID("good-key"); !ok {
			t.Error("expected good-key to be served")
		}
	})

	t.Run("fails when no keys are available", func(t *testing.T) {
		registry := service.NewSimpleRegistry()
		registry.Register(service.TokenTypeAccessToken, &testIssuerWithError{})

		handler := NewJWKSHandler(JWKSHandlerConfig{KeySource: registry})

		if _, err := handler.JWKS(ctx); err == nil {
			t.Fatal("expected error")
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jwks.json", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("caches until the refresh interval passes", func(t *testing.T) {
		privateKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		source := &countingKeySource{keys: []service.PublicKey{
			{KeyID: "k1", Algorithm: "ES256", Use: "sig", Key: &privateKey.PublicKey},
		}}
		clk := clock.NewFixtureClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

		handler := NewJWKSHandler(JWKSHandlerConfig{
			KeySource:       source,
			RefreshInterval: time.Minute,
			Clock:           clk,
		})

		for range 3 {
			if _, err := handler.JWKS(ctx); err != nil {
				t.Fatalf("JWKS failed: %v", err)
			}
		}
		if source.calls != 1 {
			t.Errorf("expected 1 key lookup, got %d", source.calls)
		}

		clk.Advance(2 * time.Minute)
		if _, err := handler.JWKS(ctx); err != nil {
			t.Fatalf("JWKS failed: %v", err)
		}
		if source.calls != 2 {
			t.Errorf("expected refresh after interval, got %d lookups", source.calls)
		}

		// A failed refresh keeps serving the cached set
		source.err = errors.New("key store unavailable")
		source.keys = nil
		clk.Advance(2 * time.Minute)
		body, err := handler.JWKS(ctx)
		if err != nil {
			t.Fatalf("expected stale set, got error: %v", err)
		}
		set, err := jwk.Parse(body)
		if err != nil {
			t.Fatalf("failed to parse JWKS: %v", err)
		}
		if _, ok := set.LookupKeyID("k1"); !ok {
			t.Error("expected cached key k1")
		}
	})
}

// fetchJWKS serves the handler and parses the response body
func fetchJWKS(t *testing.T, handler *JWKSHandler) jwk.Set {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	set, err := jwk.Parse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse JWKS: %v", err)
	}
	return set
}

type testIssuerWithKeys struct {
	publicKeys []service.PublicKey
}

func (i *testIssuerWithKeys) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	return nil, errors.New("not implemented")
}

func (i *testIssuerWithKeys) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return i.publicKeys, nil
}

type testIssuerWithError struct{}

func (i *testIssuerWithError) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	return nil, errors.New("not implemented")
}

func (i *testIssuerWithError) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return nil, errors.New("failed to get keys")
}

type countingKeySource struct {
	keys  []service.PublicKey
	err   error
	calls int
}

func (s *countingKeySource) GetAllPublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	s.calls++
	return s.keys, s.err
}
