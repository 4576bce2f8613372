package mapper

import (
	"context"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/service"
)

// StaticProviderID identifies the static claim mapper
const StaticProviderID = "oidc-static-claims-mapper"

// StaticClaimMapper adds a fixed set of claims to every token
type StaticClaimMapper struct {
	claims claims.Claims
}

// NewStaticClaimMapper creates a mapper returning a copy of c.
// Keys may be dotted claim paths.
func NewStaticClaimMapper(c map[string]any) *StaticClaimMapper {
	expanded := make(claims.Claims, len(c))
	for name, value := range c {
		expanded.SetPath(name, value)
	}
	return &StaticClaimMapper{claims: expanded}
}

// Map returns the static claims
func (m *StaticClaimMapper) Map(ctx context.Context, input *service.MapperInput) (claims.Claims, error) {
	if len(m.claims) == 0 {
		return nil, nil
	}
	out := make(claims.Claims, len(m.claims))
	out.Merge(m.claims)
	return out, nil
}
