package issuer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/service"
)

// UserInfoContentType is the type of user-info documents
const UserInfoContentType = "application/json"

// UserInfoIssuerConfig is the configuration for creating a user-info issuer
type UserInfoIssuerConfig struct {
	// Clock is the time source for timestamps
	// If nil, uses system clock
	Clock clock.Clock
}

// UserInfoIssuer produces the OpenID Connect user-info response: the claims
// mapped for the userinfo token type plus sub, as an unsigned JSON document
type UserInfoIssuer struct {
	clock clock.Clock
}

// NewUserInfoIssuer creates a new user-info issuer
func NewUserInfoIssuer(cfg UserInfoIssuerConfig) *UserInfoIssuer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &UserInfoIssuer{clock: clk}
}

// Issue implements the Issuer interface
func (i *UserInfoIssuer) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	mapped, err := issueCtx.ToClaims(ctx, service.TokenTypeUserInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to map claims: %w", err)
	}

	userInfo := make(claims.Claims, len(mapped)+1)
	userInfo.Merge(mapped)
	userInfo["sub"] = issueCtx.Subject

	document, err := json.Marshal(userInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user info: %w", err)
	}

	return &service.Token{
		Value:    string(document),
		Type:     UserInfoContentType,
		Claims:   userInfo,
		IssuedAt: i.clock.Now(),
	}, nil
}

// PublicKeys implements the Issuer interface
// User-info documents are not signed
func (i *UserInfoIssuer) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return []service.PublicKey{}, nil
}
