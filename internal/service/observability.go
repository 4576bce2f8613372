package service

import (
	"context"

	"github.com/project-kessel/userclaims/internal/request"
)

// TokenServiceObserver creates request-scoped observability probes for token issuance.
// This observer lives at the service level and creates a new probe for each issuance request.
//
// Following the pattern from https://martinfowler.com/articles/domain-oriented-observability.html#IncludingExecutionContext,
// the observer captures execution context at the start of an operation and returns a
// request-scoped probe that doesn't require context to be passed to each method.
type TokenServiceObserver interface {
	// TokenIssuanceStarted creates a new request-scoped probe for token issuance.
	// Returns an instrumented context and a probe scoped to this request.
	TokenIssuanceStarted(ctx context.Context, subject string, scope string, tokenTypes []TokenType) (context.Context, TokenIssuanceProbe)
}

// TokenIssuanceProbe provides request-scoped observability for a single token issuance operation.
//
// The probe lifecycle:
//  1. Created by TokenServiceObserver.TokenIssuanceStarted()
//  2. Events reported via TokenTypeIssuance* methods
//  3. Terminated with End() - typically deferred
type TokenIssuanceProbe interface {
	// TokenTypeIssuanceStarted is called when issuance begins for a specific token type.
	TokenTypeIssuanceStarted(tokenType TokenType)

	// TokenTypeIssuanceSucceeded is called when a token of a specific type is successfully issued.
	TokenTypeIssuanceSucceeded(tokenType TokenType, token *Token)

	// TokenTypeIssuanceFailed is called when issuance fails for a specific token type.
	TokenTypeIssuanceFailed(tokenType TokenType, err error)

	// IssuerNotFound is called when no issuer is registered for a requested token type.
	IssuerNotFound(tokenType TokenType, err error)

	// End terminates the observation. Should be deferred to ensure cleanup.
	// The probe determines success/failure based on methods called before End().
	End()
}

// ClaimEnrichmentObserver creates probes for one claim mapper application.
type ClaimEnrichmentObserver interface {
	// ClaimEnrichmentStarted creates a probe for enriching claimName of tokenType
	// from the named data source.
	ClaimEnrichmentStarted(ctx context.Context, claimName string, dataSource string, tokenType TokenType) (context.Context, ClaimEnrichmentProbe)
}

// ClaimEnrichmentProbe provides observability for a single enrichment.
// Enrichment failures are only ever reported here; they never fail issuance.
type ClaimEnrichmentProbe interface {
	// UserIDMissing is called when the user id header is absent or empty.
	UserIDMissing(header string)

	// DataFetched is called when the data source returned a result.
	DataFetched(userID string, result *DataSourceResult)

	// DataFetchFailed is called when no result could be obtained.
	DataFetchFailed(userID string, err error)

	// AttributeFetched is called for each top-level attribute of an object payload.
	AttributeFetched(key string, value any)

	// PayloadInvalid is called when an object payload cannot be decoded.
	PayloadInvalid(err error)

	// ClaimWritten is called when the claim is written with the fetched payload.
	ClaimWritten(claimName string)

	// SentinelWritten is called when the "no data" sentinel is written for a non-200 status.
	SentinelWritten(claimName string, statusCode int)

	// ClaimSkipped is called when no claim is written.
	ClaimSkipped(claimName string, reason string)

	// End terminates the observation.
	End()
}

// AuthzCheckObserver creates request-scoped observability probes for authorization checks.
// Follows the same pattern as TokenServiceObserver.
type AuthzCheckObserver interface {
	// AuthzCheckStarted creates a new request-scoped probe for an authorization check.
	// Returns an instrumented context and a probe scoped to this request.
	AuthzCheckStarted(ctx context.Context) (context.Context, AuthzCheckProbe)
}

// AuthzCheckProbe provides request-scoped observability for a single authorization check operation.
type AuthzCheckProbe interface {
	// RequestAttributesParsed is called when request attributes are built from the incoming request.
	RequestAttributesParsed(attrs *request.RequestAttributes)

	// SubjectResolved is called when the subject was read from the request.
	SubjectResolved(subject string)

	// SubjectMissing is called when the subject header is absent.
	SubjectMissing(header string)

	// TokensIssued is called when tokens were issued and attached to the request.
	TokensIssued(tokenTypes []TokenType)

	// TokenIssuanceFailed is called when issuance failed and the request is denied.
	TokenIssuanceFailed(err error)

	// End terminates the observation. Should be deferred to ensure cleanup.
	End()
}

// ApplicationObserver provides a unified interface for all observability concerns in the application.
// Concrete implementations can implement all three interfaces in a single type.
// Implementations can embed the NoOp* types to get default behavior for methods they don't care about.
type ApplicationObserver interface {
	TokenServiceObserver
	ClaimEnrichmentObserver
	AuthzCheckObserver
}

// compositeObserver delegates to multiple observers in order.
// Useful for combining logging and metrics.
type compositeObserver struct {
	observers []ApplicationObserver
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
// Observers are called in the order provided.
func NewCompositeObserver(observers ...ApplicationObserver) ApplicationObserver {
	return &compositeObserver{observers: observers}
}

func (c *compositeObserver) TokenIssuanceStarted(
	ctx context.Context,
	subject string,
	scope string,
	tokenTypes []TokenType,
) (context.Context, TokenIssuanceProbe) {
	probes := make([]TokenIssuanceProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.TokenIssuanceStarted(ctx, subject, scope, tokenTypes)
	}
	return ctx, &compositeTokenIssuanceProbe{probes: probes}
}

func (c *compositeObserver) ClaimEnrichmentStarted(
	ctx context.Context,
	claimName string,
	dataSource string,
	tokenType TokenType,
) (context.Context, ClaimEnrichmentProbe) {
	probes := make([]ClaimEnrichmentProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.ClaimEnrichmentStarted(ctx, claimName, dataSource, tokenType)
	}
	return ctx, &compositeClaimEnrichmentProbe{probes: probes}
}

func (c *compositeObserver) AuthzCheckStarted(
	ctx context.Context,
) (context.Context, AuthzCheckProbe) {
	probes := make([]AuthzCheckProbe, len(c.observers))
	for i, obs := range c.observers {
		ctx, probes[i] = obs.AuthzCheckStarted(ctx)
	}
	return ctx, &compositeAuthzCheckProbe{probes: probes}
}

// compositeTokenIssuanceProbe delegates to multiple probes in order.
type compositeTokenIssuanceProbe struct {
	probes []TokenIssuanceProbe
}

func (c *compositeTokenIssuanceProbe) TokenTypeIssuanceStarted(tokenType TokenType) {
	for _, probe := range c.probes {
		probe.TokenTypeIssuanceStarted(tokenType)
	}
}

func (c *compositeTokenIssuanceProbe) TokenTypeIssuanceSucceeded(tokenType TokenType, token *Token) {
	for _, probe := range c.probes {
		probe.TokenTypeIssuanceSucceeded(tokenType, token)
	}
}

func (c *compositeTokenIssuanceProbe) TokenTypeIssuanceFailed(tokenType TokenType, err error) {
	for _, probe := range c.probes {
		probe.TokenTypeIssuanceFailed(tokenType, err)
	}
}

func (c *compositeTokenIssuanceProbe) IssuerNotFound(tokenType TokenType, err error) {
	for _, probe := range c.probes {
		probe.IssuerNotFound(tokenType, err)
	}
}

func (c *compositeTokenIssuanceProbe) End() {
	for _, probe := range c.probes {
		probe.End()
	}
}

// compositeClaimEnrichmentProbe delegates to multiple ClaimEnrichmentProbe instances
type compositeClaimEnrichmentProbe struct {
	probes []ClaimEnrichmentProbe
}

func (c *compositeClaimEnrichmentProbe) UserIDMissing(header string) {
	for _, probe := range c.probes {
		probe.UserIDMissing(header)
	}
}

func (c *compositeClaimEnrichmentProbe) DataFetched(userID string, result *DataSourceResult) {
	for _, probe := range c.probes {
		probe.DataFetched(userID, result)
	}
}

func (c *compositeClaimEnrichmentProbe) DataFetchFailed(userID string, err error) {
	for _, probe := range c.probes {
		probe.DataFetchFailed(userID, err)
	}
}

func (c *compositeClaimEnrichmentProbe) AttributeFetched(key string, value any) {
	for _, probe := range c.probes {
		probe.AttributeFetched(key, value)
	}
}

func (c *compositeClaimEnrichmentProbe) PayloadInvalid(err error) {
	for _, probe := range c.probes {
		probe.PayloadInvalid(err)
	}
}

func (c *compositeClaimEnrichmentProbe) ClaimWritten(claimName string) {
	for _, probe := range c.probes {
		probe.ClaimWritten(claimName)
	}
}

func (c *compositeClaimEnrichmentProbe) SentinelWritten(claimName string, statusCode int) {
	for _, probe := range c.probes {
		probe.SentinelWritten(claimName, statusCode)
	}
}

func (c *compositeClaimEnrichmentProbe) ClaimSkipped(claimName string, reason string) {
	for _, probe := range c.probes {
		probe.ClaimSkipped(claimName, reason)
	}
}

func (c *compositeClaimEnrichmentProbe) End() {
	for _, probe := range c.probes {
		probe.End()
	}
}

// compositeAuthzCheckProbe delegates to multiple AuthzCheckProbe instances
type compositeAuthzCheckProbe struct {
	probes []AuthzCheckProbe
}

func (c *compositeAuthzCheckProbe) RequestAttributesParsed(attrs *request.RequestAttributes) {
	for _, probe := range c.probes {
		probe.RequestAttributesParsed(attrs)
	}
}

func (c *compositeAuthzCheckProbe) SubjectResolved(subject string) {
	for _, probe := range c.probes {
		probe.SubjectResolved(subject)
	}
}

func (c *compositeAuthzCheckProbe) SubjectMissing(header string) {
	for _, probe := range c.probes {
		probe.SubjectMissing(header)
	}
}

func (c *compositeAuthzCheckProbe) TokensIssued(tokenTypes []TokenType) {
	for _, probe := range c.probes {
		probe.TokensIssued(tokenTypes)
	}
}

func (c *compositeAuthzCheckProbe) TokenIssuanceFailed(err error) {
	for _, probe := range c.probes {
		probe.TokenIssuanceFailed(err)
	}
}

func (c *compositeAuthzCheckProbe) End() {
	for _, probe := range c.probes {
		probe.End()
	}
}

// NoOpTokenIssuanceProbe is an exported null object implementation of TokenIssuanceProbe.
// Implementations can embed this to get default no-op behavior, allowing new methods
// to be added to the interface without breaking existing implementations.
type NoOpTokenIssuanceProbe struct{}

func (n *NoOpTokenIssuanceProbe) TokenTypeIssuanceStarted(tokenType TokenType)                 {}
func (n *NoOpTokenIssuanceProbe) TokenTypeIssuanceSucceeded(tokenType TokenType, token *Token) {}
func (n *NoOpTokenIssuanceProbe) TokenTypeIssuanceFailed(tokenType TokenType, err error)       {}
func (n *NoOpTokenIssuanceProbe) IssuerNotFound(tokenType TokenType, err error)                {}
func (n *NoOpTokenIssuanceProbe) End()                                                         {}

// NoOpClaimEnrichmentProbe is an exported null object implementation of ClaimEnrichmentProbe.
// Implementations can embed this to get default no-op behavior.
type NoOpClaimEnrichmentProbe struct{}

func (n *NoOpClaimEnrichmentProbe) UserIDMissing(header string)                         {}
func (n *NoOpClaimEnrichmentProbe) DataFetched(userID string, result *DataSourceResult) {}
func (n *NoOpClaimEnrichmentProbe) DataFetchFailed(userID string, err error)            {}
func (n *NoOpClaimEnrichmentProbe) AttributeFetched(key string, value any)              {}
func (n *NoOpClaimEnrichmentProbe) PayloadInvalid(err error)                            {}
func (n *NoOpClaimEnrichmentProbe) ClaimWritten(claimName string)                       {}
func (n *NoOpClaimEnrichmentProbe) SentinelWritten(claimName string, statusCode int)    {}
func (n *NoOpClaimEnrichmentProbe) ClaimSkipped(claimName string, reason string)        {}
func (n *NoOpClaimEnrichmentProbe) End()                                                {}

// NoOpAuthzCheckProbe is an exported null object implementation of AuthzCheckProbe.
// Implementations can embed this to get default no-op behavior.
type NoOpAuthzCheckProbe struct{}

func (n *NoOpAuthzCheckProbe) RequestAttributesParsed(attrs *request.RequestAttributes) {}
func (n *NoOpAuthzCheckProbe) SubjectResolved(subject string)                           {}
func (n *NoOpAuthzCheckProbe) SubjectMissing(header string)                             {}
func (n *NoOpAuthzCheckProbe) TokensIssued(tokenTypes []TokenType)                      {}
func (n *NoOpAuthzCheckProbe) TokenIssuanceFailed(err error)                            {}
func (n *NoOpAuthzCheckProbe) End()                                                     {}

// NoOpApplicationObserver implements ApplicationObserver with no-op behavior.
// Use this as a default when no observability is needed.
type NoOpApplicationObserver struct{}

// NoOpTokenServiceObserver returns an observer that does nothing.
// Use this as a default when no observability is needed.
func NoOpTokenServiceObserver() TokenServiceObserver {
	return &NoOpApplicationObserver{}
}

// NoOpClaimEnrichmentObserver returns an observer that does nothing.
func NoOpClaimEnrichmentObserver() ClaimEnrichmentObserver {
	return &NoOpApplicationObserver{}
}

// NoOpAuthzCheckObserver returns an observer that does nothing.
func NoOpAuthzCheckObserver() AuthzCheckObserver {
	return &NoOpApplicationObserver{}
}

// NoOpObserver returns an application observer that does nothing.
func NoOpObserver() ApplicationObserver {
	return &NoOpApplicationObserver{}
}

func (n *NoOpApplicationObserver) TokenIssuanceStarted(ctx context.Context, subject string, scope string, tokenTypes []TokenType) (context.Context, TokenIssuanceProbe) {
	return ctx, &NoOpTokenIssuanceProbe{}
}

func (n *NoOpApplicationObserver) ClaimEnrichmentStarted(ctx context.Context, claimName string, dataSource string, tokenType TokenType) (context.Context, ClaimEnrichmentProbe) {
	return ctx, &NoOpClaimEnrichmentProbe{}
}

func (n *NoOpApplicationObserver) AuthzCheckStarted(ctx context.Context) (context.Context, AuthzCheckProbe) {
	return ctx, &NoOpAuthzCheckProbe{}
}
