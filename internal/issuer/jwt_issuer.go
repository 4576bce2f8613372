package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/keys"
	"github.com/project-kessel/userclaims/internal/service"
)

const (
	// AccessTokenURN is the token type URN of issued access tokens
	AccessTokenURN = "urn:ietf:params:oauth:token-type:access_token"

	// IDTokenURN is the token type URN of issued ID tokens
	IDTokenURN = "urn:ietf:params:oauth:token-type:id_token"

	// TokenUseClaim distinguishes access tokens from ID tokens
	TokenUseClaim = "token_use"
)

// DefaultTTL is the lifetime of issued tokens when none is configured
const DefaultTTL = 5 * time.Minute

// JWTIssuerConfig is the configuration for creating a JWT issuer
type JWTIssuerConfig struct {
	// TokenType is access_token or id_token
	TokenType service.TokenType

	// IssuerURL is the issuer URL (iss claim)
	IssuerURL string

	// TTL is the time-to-live for tokens (default 5m)
	TTL time.Duration

	// Signer provides the signing key and algorithm
	Signer keys.Signer

	// Clock is an optional clock for testing (defaults to system clock)
	Clock clock.Clock
}

// JWTIssuer issues signed access tokens and ID tokens.
// Mapped claims for the token type are included alongside the registered claims;
// registered claims (iss, sub, aud, iat, nbf, exp, jti) always win.
type JWTIssuer struct {
	tokenType service.TokenType
	issuerURL string
	ttl       time.Duration
	signer    keys.Signer
	clock     clock.Clock
}

// NewJWTIssuer creates a new JWT issuer
func NewJWTIssuer(cfg JWTIssuerConfig) (*JWTIssuer, error) {
	switch cfg.TokenType {
	case service.TokenTypeAccessToken, service.TokenTypeIDToken:
	default:
		return nil, fmt.Errorf("JWT issuer cannot issue token type %q", cfg.TokenType)
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystemClock()
	}

	return &JWTIssuer{
		tokenType: cfg.TokenType,
		issuerURL: cfg.IssuerURL,
		ttl:       cfg.TTL,
		signer:    cfg.Signer,
		clock:     cfg.Clock,
	}, nil
}

// Issue implements the Issuer interface
func (i *JWTIssuer) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	mapped, err := issueCtx.ToClaims(ctx, i.tokenType)
	if err != nil {
		return nil, fmt.Errorf("failed to map claims: %w", err)
	}

	now := i.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	tokenClaims := make(claims.Claims, len(mapped)+8)
	tokenClaims.Merge(mapped)

	registered := claims.Claims{
		jwt.IssuerKey:     i.issuerURL,
		jwt.SubjectKey:    issueCtx.Subject,
		jwt.IssuedAtKey:   now.Unix(),
		jwt.NotBeforeKey:  now.Unix(),
		jwt.ExpirationKey: expiresAt.Unix(),
		jwt.JwtIDKey:      uuid.NewString(),
		TokenUseClaim:     i.tokenUse(),
	}
	if issueCtx.Audience != "" {
		registered[jwt.AudienceKey] = []string{issueCtx.Audience}
	}
	if issueCtx.Scope != "" && i.tokenType == service.TokenTypeAccessToken {
		registered["scope"] = issueCtx.Scope
	}
	tokenClaims.Merge(registered)

	token := jwt.New()
	for name, value := range tokenClaims {
		if err := token.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to set claim %s: %w", name, err)
		}
	}

	signer, keyID, algorithm, err := i.signer.GetCurrentSigner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current signer: %w", err)
	}
	signAlg, ok := jwa.LookupSignatureAlgorithm(string(algorithm))
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, string(keyID)); err != nil {
		return nil, fmt.Errorf("failed to set key ID header: %w", err)
	}
	if err := headers.Set(jws.TypeKey, i.headerType()); err != nil {
		return nil, fmt.Errorf("failed to set type header: %w", err)
	}

	signedToken, err := jwt.Sign(token,
		jwt.WithKey(signAlg, signer, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &service.Token{
		Value:     string(signedToken),
		Type:      i.tokenTypeURN(),
		Claims:    tokenClaims,
		ExpiresAt: expiresAt,
		IssuedAt:  now,
	}, nil
}

// PublicKeys implements the Issuer interface
func (i *JWTIssuer) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return i.signer.PublicKeys(ctx)
}

// TokenType returns the token type this issuer issues
func (i *JWTIssuer) TokenType() service.TokenType {
	return i.tokenType
}

func (i *JWTIssuer) tokenUse() string {
	if i.tokenType == service.TokenTypeIDToken {
		return "id"
	}
	return "access"
}

func (i *JWTIssuer) headerType() string {
	if i.tokenType == service.TokenTypeIDToken {
		return "JWT"
	}
	return "at+jwt"
}

func (i *JWTIssuer) tokenTypeURN() string {
	if i.tokenType == service.TokenTypeIDToken {
		return IDTokenURN
	}
	return AccessTokenURN
}
