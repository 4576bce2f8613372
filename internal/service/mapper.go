package service

import (
	"context"
	"fmt"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/request"
)

// ClaimMapper transforms inputs into claims for the token
// Claim mappers implement policy logic - what information to include in tokens
type ClaimMapper interface {
	// Map produces claims based on the input
	// Returns nil if the mapper has no claims to contribute
	Map(ctx context.Context, input *MapperInput) (claims.Claims, error)
}

// MapperInput contains all inputs available to a claim mapper
type MapperInput struct {
	// Subject is the identifier of the user the token is issued to
	Subject string

	// TokenType is the token being built
	TokenType TokenType

	// RequestAttributes contains information about the request
	RequestAttributes *request.RequestAttributes

	// DataSources fetches from data sources, once per issuance
	// Mappers can fetch only the data sources they need
	DataSources *ScopedDataSources

	// DataSourceInput is the default input to use when fetching from data sources
	DataSourceInput *DataSourceInput
}

// MapperDescriptor describes what a claim mapper can do
type MapperDescriptor interface {
	// ProviderID identifies the mapper implementation
	ProviderID() string

	// Capabilities is the set of token types the mapper can contribute to
	Capabilities() TokenTypeSet
}

// MapperRegistration binds a configured claim mapper to the token types it applies to
type MapperRegistration struct {
	// Name identifies this mapper instance in logs and metrics
	Name string

	// ProviderID identifies the mapper implementation
	ProviderID string

	// Mapper produces the claims
	Mapper ClaimMapper

	// IncludeIn is the set of token types the mapper is applied to
	IncludeIn TokenTypeSet
}

// NewMapperRegistration validates that includeIn is a non-empty subset of
// the descriptor's capabilities
func NewMapperRegistration(name string, mapper ClaimMapper, descriptor MapperDescriptor, includeIn TokenTypeSet) (*MapperRegistration, error) {
	if name == "" {
		return nil, fmt.Errorf("mapper name is required")
	}
	if mapper == nil {
		return nil, fmt.Errorf("mapper %s: claim mapper is required", name)
	}
	if includeIn.IsEmpty() {
		return nil, fmt.Errorf("mapper %s: must be included in at least one token type", name)
	}

	capabilities := AllTokenTypesSet
	providerID := ""
	if descriptor != nil {
		capabilities = descriptor.Capabilities()
		providerID = descriptor.ProviderID()
	}

	if !capabilities.Contains(includeIn) {
		return nil, fmt.Errorf("mapper %s: cannot be included in %s (supports %s)",
			name, includeIn&^capabilities, capabilities)
	}

	return &MapperRegistration{
		Name:       name,
		ProviderID: providerID,
		Mapper:     mapper,
		IncludeIn:  includeIn,
	}, nil
}

// AppliesTo reports whether the registration contributes to tokenType
func (r *MapperRegistration) AppliesTo(tokenType TokenType) bool {
	return r.IncludeIn.Has(tokenType)
}
