package probe

import (
	"context"
	"log/slog"

	"github.com/project-kessel/userclaims/internal/request"
	"github.com/project-kessel/userclaims/internal/service"
)

// Event names carried on the "event" attribute of every probe log line
const (
	EventTokenIssuance   = "token_issuance"
	EventClaimEnrichment = "claim_enrichment"
	EventAuthzCheck      = "authz_check"
)

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	service.NoOpApplicationObserver
	logger *slog.Logger
}

// LoggingObserverConfig configures the logging observer
type LoggingObserverConfig struct {
	// Logger is the base logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// NewLoggingObserver creates an application observer that logs all observability events
// using structured logging with slog.
func NewLoggingObserver(logger *slog.Logger) service.ApplicationObserver {
	return NewLoggingObserverWithConfig(LoggingObserverConfig{
		Logger: logger,
	})
}

// NewLoggingObserverWithConfig creates a logging observer with custom configuration
func NewLoggingObserverWithConfig(cfg LoggingObserverConfig) service.ApplicationObserver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &loggingObserver{
		logger: logger,
	}
}

func (o *loggingObserver) TokenIssuanceStarted(
	ctx context.Context,
	subject string,
	scope string,
	tokenTypes []service.TokenType,
) (context.Context, service.TokenIssuanceProbe) {
	probeLogger := o.logger.With("event", EventTokenIssuance)

	probeLogger.LogAttrs(ctx, slog.LevelDebug, "Starting token issuance",
		slog.String("subject", subject),
		slog.String("scope", scope),
		slog.Any("token_types", tokenTypes),
	)

	return ctx, &loggingTokenIssuanceProbe{
		ctx:    ctx,
		logger: probeLogger,
	}
}

// loggingTokenIssuanceProbe is a request-scoped probe that logs events for a single token issuance
type loggingTokenIssuanceProbe struct {
	service.NoOpTokenIssuanceProbe
	ctx    context.Context
	logger *slog.Logger
}

func (p *loggingTokenIssuanceProbe) TokenTypeIssuanceStarted(tokenType service.TokenType) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Issuing token",
		slog.String("token_type", string(tokenType)),
	)
}

func (p *loggingTokenIssuanceProbe) TokenTypeIssuanceSucceeded(tokenType service.TokenType, token *service.Token) {
	attrs := []slog.Attr{
		slog.String("token_type", string(tokenType)),
	}

	if token != nil {
		attrs = append(attrs, slog.Time("issued_at", token.IssuedAt))
		if !token.ExpiresAt.IsZero() {
			attrs = append(attrs, slog.Time("expires_at", token.ExpiresAt))
		}
	}

	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Token issued successfully", attrs...)
}

func (p *loggingTokenIssuanceProbe) TokenTypeIssuanceFailed(tokenType service.TokenType, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Token issuance failed",
		slog.String("token_type", string(tokenType)),
		slog.String("error", err.Error()),
	)
}

func (p *loggingTokenIssuanceProbe) IssuerNotFound(tokenType service.TokenType, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"No issuer found for token type",
		slog.String("token_type", string(tokenType)),
		slog.String("error", err.Error()),
	)
}

func (p *loggingTokenIssuanceProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Token issuance completed")
}

// ClaimEnrichmentStarted implements service.ClaimEnrichmentObserver
func (o *loggingObserver) ClaimEnrichmentStarted(
	ctx context.Context,
	claimName string,
	dataSource string,
	tokenType service.TokenType,
) (context.Context, service.ClaimEnrichmentProbe) {
	probeLogger := o.logger.With(
		"event", EventClaimEnrichment,
		"claim", claimName,
		"data_source", dataSource,
		"token_type", string(tokenType),
	)

	probeLogger.LogAttrs(ctx, slog.LevelDebug, "Starting claim enrichment")

	return ctx, &loggingClaimEnrichmentProbe{
		ctx:    ctx,
		logger: probeLogger,
	}
}

// loggingClaimEnrichmentProbe logs the steps of one mapper application.
// Every failure the enricher swallows surfaces here at warn level.
type loggingClaimEnrichmentProbe struct {
	service.NoOpClaimEnrichmentProbe
	ctx    context.Context
	logger *slog.Logger
}

func (p *loggingClaimEnrichmentProbe) UserIDMissing(header string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"User id header missing, skipping enrichment",
		slog.String("header", header),
	)
}

func (p *loggingClaimEnrichmentProbe) DataFetched(userID string, result *service.DataSourceResult) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	if result != nil {
		attrs = append(attrs,
			slog.Int("status", result.StatusCode),
			slog.String("content_type", string(result.ContentType)),
			slog.Int("bytes", len(result.Data)),
		)
	}
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "User data fetched", attrs...)
}

func (p *loggingClaimEnrichmentProbe) DataFetchFailed(userID string, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"User data fetch failed",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

func (p *loggingClaimEnrichmentProbe) AttributeFetched(key string, value any) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"User attribute fetched",
		slog.String("attribute", key),
		slog.Any("value", value),
	)
}

func (p *loggingClaimEnrichmentProbe) PayloadInvalid(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"User data payload invalid",
		slog.String("error", err.Error()),
	)
}

func (p *loggingClaimEnrichmentProbe) ClaimWritten(claimName string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Claim written")
}

func (p *loggingClaimEnrichmentProbe) SentinelWritten(claimName string, statusCode int) {
	p.logger.LogAttrs(p.ctx, slog.LevelInfo,
		"Directory returned non-200 status, wrote placeholder claim",
		slog.Int("status", statusCode),
	)
}

func (p *loggingClaimEnrichmentProbe) ClaimSkipped(claimName string, reason string) {
	p.logger.LogAttrs(p.ctx, slog.LevelInfo,
		"Claim not written",
		slog.String("reason", reason),
	)
}

func (p *loggingClaimEnrichmentProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Claim enrichment completed")
}

// AuthzCheckStarted implements service.AuthzCheckObserver
func (o *loggingObserver) AuthzCheckStarted(
	ctx context.Context,
) (context.Context, service.AuthzCheckProbe) {
	probeLogger := o.logger.With("event", EventAuthzCheck)

	probeLogger.LogAttrs(ctx, slog.LevelDebug, "Starting authorization check")

	return ctx, &loggingAuthzCheckProbe{
		ctx:    ctx,
		logger: probeLogger,
	}
}

// loggingAuthzCheckProbe is a request-scoped probe that logs authorization check events
type loggingAuthzCheckProbe struct {
	service.NoOpAuthzCheckProbe
	ctx    context.Context
	logger *slog.Logger
}

func (p *loggingAuthzCheckProbe) RequestAttributesParsed(attrs *request.RequestAttributes) {
	logAttrs := []slog.Attr{}
	if attrs != nil {
		logAttrs = append(logAttrs,
			slog.String("method", attrs.Method),
			slog.String("path", attrs.Path),
		)
	}
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Request attributes parsed", logAttrs...)
}

func (p *loggingAuthzCheckProbe) SubjectResolved(subject string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Subject resolved",
		slog.String("subject", subject),
	)
}

func (p *loggingAuthzCheckProbe) SubjectMissing(header string) {
	p.logger.LogAttrs(p.ctx, slog.LevelInfo,
		"Subject header missing",
		slog.String("header", header),
	)
}

func (p *loggingAuthzCheckProbe) TokensIssued(tokenTypes []service.TokenType) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Tokens attached to request",
		slog.Any("token_types", tokenTypes),
	)
}

func (p *loggingAuthzCheckProbe) TokenIssuanceFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Token issuance failed",
		slog.String("error", err.Error()),
	)
}

func (p *loggingAuthzCheckProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Authorization check completed")
}
