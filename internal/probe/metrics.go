package probe

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/service"
)

// Enrichment outcomes recorded on the claim_enrichments_total counter
const (
	OutcomeWritten       = "written"
	OutcomeSentinel      = "sentinel"
	OutcomeSkipped       = "skipped"
	OutcomeUserIDMissing = "user_id_missing"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomeInvalid       = "payload_invalid"
)

// Issuance and authorization outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeFailure        = "failure"
	OutcomeIssuerNotFound = "issuer_not_found"
	OutcomeAllowed        = "allowed"
	OutcomeDenied         = "denied"
	OutcomeNoSubject      = "no_subject"
)

// Metrics holds the Prometheus collectors updated by the metrics observer
type Metrics struct {
	TokenIssuances   *prometheus.CounterVec
	ClaimEnrichments *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	AuthzChecks      *prometheus.CounterVec
}

// NewMetrics creates the collectors under the given namespace and registers them.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TokenIssuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_issuances_total",
			Help:      "Tokens issued by token type and outcome",
		}, []string{"token_type", "outcome"}),

		ClaimEnrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_enrichments_total",
			Help:      "Claim enrichments by claim, token type and outcome",
		}, []string{"claim", "token_type", "outcome"}),

		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_fetch_duration_seconds",
			Help:      "Time from enrichment start until user data was available",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"data_source", "status"}),

		AuthzChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_checks_total",
			Help:      "ext_authz checks by outcome",
		}, []string{"outcome"}),
	}

	var err error
	m.TokenIssuances, err = register(reg, m.TokenIssuances)
	if err != nil {
		return nil, err
	}
	m.ClaimEnrichments, err = register(reg, m.ClaimEnrichments)
	if err != nil {
		return nil, err
	}
	m.FetchDuration, err = register(reg, m.FetchDuration)
	if err != nil {
		return nil, err
	}
	m.AuthzChecks, err = register(reg, m.AuthzChecks)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// register registers c, returning the existing collector when an identical one is already registered
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// MetricsObserverConfig configures the metrics observer
type MetricsObserverConfig struct {
	// Metrics to update. Required.
	Metrics *Metrics

	// Clock used to time data fetches. Defaults to the system clock.
	Clock clock.Clock
}

type metricsObserver struct {
	service.NoOpApplicationObserver
	metrics *Metrics
	clock   clock.Clock
}

// NewMetricsObserver creates an application observer that records Prometheus metrics
func NewMetricsObserver(cfg MetricsObserverConfig) (service.ApplicationObserver, error) {
	if cfg.Metrics == nil {
		return nil, errors.New("metrics are required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &metricsObserver{metrics: cfg.Metrics, clock: clk}, nil
}

func (o *metricsObserver) TokenIssuanceStarted(
	ctx context.Context,
	subject string,
	scope string,
	tokenTypes []service.TokenType,
) (context.Context, service.TokenIssuanceProbe) {
	return ctx, &metricsTokenIssuanceProbe{metrics: o.metrics}
}

type metricsTokenIssuanceProbe struct {
	service.NoOpTokenIssuanceProbe
	metrics *Metrics
}

func (p *metricsTokenIssuanceProbe) TokenTypeIssuanceSucceeded(tokenType service.TokenType, token *service.Token) {
	p.metrics.TokenIssuances.WithLabelValues(string(tokenType), OutcomeSuccess).Inc()
}

func (p *metricsTokenIssuanceProbe) TokenTypeIssuanceFailed(tokenType service.TokenType, err error) {
	p.metrics.TokenIssuances.WithLabelValues(string(tokenType), OutcomeFailure).Inc()
}

func (p *metricsTokenIssuanceProbe) IssuerNotFound(tokenType service.TokenType, err error) {
	p.metrics.TokenIssuances.WithLabelValues(string(tokenType), OutcomeIssuerNotFound).Inc()
}

func (o *metricsObserver) ClaimEnrichmentStarted(
	ctx context.Context,
	claimName string,
	dataSource string,
	tokenType service.TokenType,
) (context.Context, service.ClaimEnrichmentProbe) {
	return ctx, &metricsClaimEnrichmentProbe{
		metrics:    o.metrics,
		clock:      o.clock,
		started:    o.clock.Now(),
		claimName:  claimName,
		dataSource: dataSource,
		tokenType:  tokenType,
		outcome:    OutcomeSkipped,
	}
}

// metricsClaimEnrichmentProbe counts exactly one outcome per enrichment, at End
type metricsClaimEnrichmentProbe struct {
	service.NoOpClaimEnrichmentProbe
	metrics    *Metrics
	clock      clock.Clock
	started    time.Time
	claimName  string
	dataSource string
	tokenType  service.TokenType
	outcome    string
	ended      bool
}

func (p *metricsClaimEnrichmentProbe) observeFetch(status string) {
	p.metrics.FetchDuration.
		WithLabelValues(p.dataSource, status).
		Observe(p.clock.Now().Sub(p.started).Seconds())
}

func (p *metricsClaimEnrichmentProbe) UserIDMissing(header string) {
	p.outcome = OutcomeUserIDMissing
}

func (p *metricsClaimEnrichmentProbe) DataFetched(userID string, result *service.DataSourceResult) {
	status := "none"
	if result != nil {
		status = strconv.Itoa(result.StatusCode)
	}
	p.observeFetch(status)
}

func (p *metricsClaimEnrichmentProbe) DataFetchFailed(userID string, err error) {
	p.observeFetch("error")
	p.outcome = OutcomeFetchFailed
}

func (p *metricsClaimEnrichmentProbe) PayloadInvalid(err error) {
	p.outcome = OutcomeInvalid
}

func (p *metricsClaimEnrichmentProbe) ClaimWritten(claimName string) {
	p.outcome = OutcomeWritten
}

func (p *metricsClaimEnrichmentProbe) SentinelWritten(claimName string, statusCode int) {
	p.outcome = OutcomeSentinel
}

func (p *metricsClaimEnrichmentProbe) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.metrics.ClaimEnrichments.WithLabelValues(p.claimName, string(p.tokenType), p.outcome).Inc()
}

func (o *metricsObserver) AuthzCheckStarted(ctx context.Context) (context.Context, service.AuthzCheckProbe) {
	return ctx, &metricsAuthzCheckProbe{metrics: o.metrics, outcome: OutcomeAllowed}
}

type metricsAuthzCheckProbe struct {
	service.NoOpAuthzCheckProbe
	metrics *Metrics
	outcome string
	ended   bool
}

func (p *metricsAuthzCheckProbe) SubjectMissing(header string) {
	p.outcome = OutcomeNoSubject
}

func (p *metricsAuthzCheckProbe) TokenIssuanceFailed(err error) {
	p.outcome = OutcomeDenied
}

func (p *metricsAuthzCheckProbe) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.metrics.AuthzChecks.WithLabelValues(p.outcome).Inc()
}
