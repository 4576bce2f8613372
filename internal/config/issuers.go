package config

import (
	"crypto"
	"fmt"
	"time"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/issuer"
	"github.com/project-kessel/userclaims/internal/keys"
	"github.com/project-kessel/userclaims/internal/service"
)

// defaultIssuers are used when no issuers are configured
var defaultIssuers = []IssuerConfig{
	{TokenType: string(service.TokenTypeAccessToken)},
	{TokenType: string(service.TokenTypeIDToken)},
	{TokenType: string(service.TokenTypeUserInfo)},
}

// NewSigner creates the token signer from configuration.
// A key is generated unless private_key_file is set.
func NewSigner(cfg SigningConfig) (*keys.MemorySigner, error) {
	keyType, err := keys.ParseKeyType(cfg.KeyType)
	if err != nil {
		return nil, err
	}

	var privateKey crypto.Signer
	if cfg.PrivateKeyFile != "" {
		privateKey, err = keys.LoadPrivateKeyFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
	}

	return keys.NewMemorySigner(keys.MemorySignerConfig{
		KeyType:    keyType,
		Algorithm:  keys.Algorithm(cfg.Algorithm),
		PrivateKey: privateKey,
	})
}

// NewIssuerRegistry creates an issuer registry from configuration
func NewIssuerRegistry(cfg Config, signer keys.Signer, clk clock.Clock) (*service.SimpleRegistry, error) {
	registry := service.NewSimpleRegistry()

	issuerCfgs := cfg.Issuers
	if len(issuerCfgs) == 0 {
		issuerCfgs = defaultIssuers
	}

	for _, issuerCfg := range issuerCfgs {
		if issuerCfg.TokenType == "" {
			return nil, fmt.Errorf("token_type is required for issuer")
		}

		tokenType, err := service.ParseTokenType(issuerCfg.TokenType)
		if err != nil {
			return nil, err
		}

		iss, err := newIssuer(issuerCfg, tokenType, cfg.IssuerURL, signer, clk)
		if err != nil {
			return nil, fmt.Errorf("failed to create issuer for token type %s: %w", issuerCfg.TokenType, err)
		}

		registry.Register(tokenType, iss)
	}

	return registry, nil
}

// newIssuer creates an issuer from configuration
func newIssuer(cfg IssuerConfig, tokenType service.TokenType, issuerURL string, signer keys.Signer, clk clock.Clock) (service.Issuer, error) {
	issuerType := cfg.Type
	if issuerType == "" {
		issuerType = "jwt"
		if tokenType == service.TokenTypeUserInfo {
			issuerType = "userinfo"
		}
	}

	switch issuerType {
	case "jwt":
		return newJWTIssuer(cfg, tokenType, issuerURL, signer, clk)
	case "userinfo":
		if tokenType != service.TokenTypeUserInfo {
			return nil, fmt.Errorf("userinfo issuer cannot issue %s", tokenType)
		}
		return issuer.NewUserInfoIssuer(issuer.UserInfoIssuerConfig{Clock: clk}), nil
	default:
		return nil, fmt.Errorf("unknown issuer type: %s (supported: jwt, userinfo)", issuerType)
	}
}

// newJWTIssuer creates a signed access or ID token issuer
func newJWTIssuer(cfg IssuerConfig, tokenType service.TokenType, issuerURL string, signer keys.Signer, clk clock.Clock) (service.Issuer, error) {
	if cfg.IssuerURL != "" {
		issuerURL = cfg.IssuerURL
	}
	if issuerURL == "" {
		return nil, fmt.Errorf("jwt issuer requires issuer_url")
	}

	// Parse TTL
	ttl := issuer.DefaultTTL
	if cfg.TTL != "" {
		duration, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl: %w", err)
		}
		ttl = duration
	}

	iss, err := issuer.NewJWTIssuer(issuer.JWTIssuerConfig{
		TokenType: tokenType,
		IssuerURL: issuerURL,
		TTL:       ttl,
		Signer:    signer,
		Clock:     clk,
	})
	if err != nil {
		return nil, err
	}
	return iss, nil
}
