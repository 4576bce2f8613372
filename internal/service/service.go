package service

import (
	"context"
	"fmt"

	"github.com/project-kessel/userclaims/internal/request"
)

// TokenService orchestrates token issuance
// This is the core business logic that brings together data sources,
// claim mappers and issuers to produce tokens
type TokenService struct {
	audience       string
	dataSources    *DataSourceRegistry
	mappers        []*MapperRegistration
	issuerRegistry Registry
	observer       TokenServiceObserver
}

// NewTokenService creates a new token service
func NewTokenService(
	audience string,
	dataSources *DataSourceRegistry,
	mappers []*MapperRegistration,
	issuerRegistry Registry,
	observer TokenServiceObserver,
) *TokenService {
	// Use null object pattern - default to no-op observer if none provided
	if observer == nil {
		observer = NoOpTokenServiceObserver()
	}
	if dataSources == nil {
		dataSources = NewDataSourceRegistry()
	}
	return &TokenService{
		audience:       audience,
		dataSources:    dataSources,
		mappers:        mappers,
		issuerRegistry: issuerRegistry,
		observer:       observer,
	}
}

// Audience returns the audience of issued tokens
func (ts *TokenService) Audience() string {
	return ts.audience
}

// Mappers returns the registered claim mappers
func (ts *TokenService) Mappers() []*MapperRegistration {
	return ts.mappers
}

// IssueRequest contains the inputs for token issuance
type IssueRequest struct {
	// Subject is the identifier of the user the tokens are issued to
	Subject string

	// RequestAttributes contains information about the request
	RequestAttributes *request.RequestAttributes

	// TokenTypes specifies which token types to issue
	TokenTypes []TokenType

	// Scope for the tokens
	Scope string
}

// IssueTokens orchestrates the complete token issuance process
// Returns a map of token type to issued token.
// All token types share one data source scope, so each data source is
// fetched at most once per user for the whole call.
func (ts *TokenService) IssueTokens(ctx context.Context, req *IssueRequest) (map[TokenType]*Token, error) {
	// Create request-scoped probe that captures execution context
	ctx, probe := ts.observer.TokenIssuanceStarted(ctx, req.Subject, req.Scope, req.TokenTypes)
	defer probe.End()

	issueCtx := &IssueContext{
		Subject:           req.Subject,
		RequestAttributes: req.RequestAttributes,
		Audience:          ts.audience,
		Scope:             req.Scope,
		Mappers:           ts.mappers,
		DataSources:       ts.dataSources.Scope(),
	}

	tokens := make(map[TokenType]*Token)
	for _, tokenType := range req.TokenTypes {
		probe.TokenTypeIssuanceStarted(tokenType)

		iss, err := ts.issuerRegistry.GetIssuer(tokenType)
		if err != nil {
			probe.IssuerNotFound(tokenType, err)
			return nil, fmt.Errorf("no issuer for token type %s: %w", tokenType, err)
		}

		token, err := iss.Issue(ctx, issueCtx)
		if err != nil {
			probe.TokenTypeIssuanceFailed(tokenType, err)
			return nil, fmt.Errorf("failed to issue %s: %w", tokenType, err)
		}

		probe.TokenTypeIssuanceSucceeded(tokenType, token)
		tokens[tokenType] = token
	}

	return tokens, nil
}
