package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/service"
)

// logLines decodes JSON log output into one map per line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func messages(lines []map[string]any) []string {
	var msgs []string
	for _, line := range lines {
		msgs = append(msgs, line["msg"].(string))
	}
	return msgs
}

func TestLoggingObserver_ClaimEnrichment(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	observer := NewLoggingObserver(logger)

	_, probe := observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeAccessToken)
	probe.DataFetched("42", &service.DataSourceResult{
		StatusCode:  200,
		Data:        []byte(`{"name":"Ada"}`),
		ContentType: service.ContentTypeJSON,
	})
	probe.AttributeFetched("name", "Ada")
	probe.ClaimWritten("user_data")
	probe.End()

	lines := logLines(t, &buf)
	require.Len(t, lines, 5)
	assert.Equal(t, []string{
		"Starting claim enrichment",
		"User data fetched",
		"User attribute fetched",
		"Claim written",
		"Claim enrichment completed",
	}, messages(lines))

	for _, line := range lines {
		assert.Equal(t, EventClaimEnrichment, line["event"])
		assert.Equal(t, "user_data", line["claim"])
		assert.Equal(t, "directory", line["data_source"])
		assert.Equal(t, "access_token", line["token_type"])
	}

	assert.Equal(t, "42", lines[1]["user_id"])
	assert.Equal(t, float64(200), lines[1]["status"])
	assert.Equal(t, float64(14), lines[1]["bytes"])
	assert.Equal(t, "name", lines[2]["attribute"])
	assert.Equal(t, "Ada", lines[2]["value"])
}

func TestLoggingObserver_EnrichmentFailuresAreWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	observer := NewLoggingObserver(logger)

	_, probe := observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeIDToken)
	probe.DataFetchFailed("42", errors.New("directory unavailable: connection refused"))
	probe.PayloadInvalid(errors.New("payload is not a JSON object"))
	probe.End()

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "User data fetch failed", lines[0]["msg"])
	assert.Equal(t, "directory unavailable: connection refused", lines[0]["error"])
	assert.Equal(t, "User data payload invalid", lines[1]["msg"])
}

func TestLoggingObserver_TokenIssuanceAndAuthz(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	observer := NewLoggingObserver(logger)

	_, issuance := observer.TokenIssuanceStarted(context.Background(), "42", "openid", []service.TokenType{service.TokenTypeAccessToken})
	issuance.TokenTypeIssuanceSucceeded(service.TokenTypeAccessToken, &service.Token{IssuedAt: time.Now()})
	issuance.End()

	_, authz := observer.AuthzCheckStarted(context.Background())
	authz.SubjectMissing("userId")
	authz.End()

	lines := logLines(t, &buf)
	require.Len(t, lines, 6)
	assert.Equal(t, EventTokenIssuance, lines[0]["event"])
	assert.Equal(t, "42", lines[0]["subject"])
	assert.NotContains(t, lines[1], "expires_at", "user-info style tokens without expiry omit expires_at")
	assert.Equal(t, EventAuthzCheck, lines[3]["event"])
	assert.Equal(t, "Subject header missing", lines[4]["msg"])
	assert.Equal(t, "userId", lines[4]["header"])
}

func TestEventFilteringHandler(t *testing.T) {
	newLogger := func(buf *bytes.Buffer) *slog.Logger {
		base := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
		return slog.New(NewEventFilteringHandler(base, slog.LevelInfo, map[string]slog.Level{
			EventClaimEnrichment: slog.LevelDebug,
			EventAuthzCheck:      LevelDisabled,
		}))
	}

	t.Run("events bound with With use their own level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf)

		logger.With("event", EventClaimEnrichment).Debug("enrichment debug")
		logger.With("event", EventTokenIssuance).Debug("issuance debug")
		logger.With("event", EventAuthzCheck).Error("authz error")

		assert.Equal(t, []string{"enrichment debug"}, messages(logLines(t, &buf)))
	})

	t.Run("events on the record use their own level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf)

		logger.Debug("enrichment debug", "event", EventClaimEnrichment)
		logger.Debug("plain debug")
		logger.Info("plain info")

		assert.Equal(t, []string{"enrichment debug", "plain info"}, messages(logLines(t, &buf)))
	})

	t.Run("groups keep the bound event", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf)

		logger.With("event", EventClaimEnrichment).WithGroup("fetch").Debug("grouped")

		assert.Equal(t, []string{"grouped"}, messages(logLines(t, &buf)))
	})

	t.Run("logging observer output is filtered per event", func(t *testing.T) {
		var buf bytes.Buffer
		observer := NewLoggingObserver(newLogger(&buf))

		_, enrichment := observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeAccessToken)
		enrichment.End()
		_, authz := observer.AuthzCheckStarted(context.Background())
		authz.TokenIssuanceFailed(errors.New("boom"))
		authz.End()

		assert.Equal(t, []string{"Starting claim enrichment", "Claim enrichment completed"}, messages(logLines(t, &buf)))
	})
}

func newTestMetrics(t *testing.T) (*Metrics, *clock.FixtureClock, service.ApplicationObserver) {
	t.Helper()

	metrics, err := NewMetrics(prometheus.NewRegistry(), "userclaims")
	require.NoError(t, err)

	clk := clock.NewFixtureClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	observer, err := NewMetricsObserver(MetricsObserverConfig{Metrics: metrics, Clock: clk})
	require.NoError(t, err)

	return metrics, clk, observer
}

func TestMetricsObserver_ClaimEnrichmentOutcomes(t *testing.T) {
	metrics, _, observer := newTestMetrics(t)
	ctx := context.Background()

	enrich := func(steps func(p service.ClaimEnrichmentProbe)) {
		_, p := observer.ClaimEnrichmentStarted(ctx, "user_data", "directory", service.TokenTypeAccessToken)
		steps(p)
		p.End()
	}

	enrich(func(p service.ClaimEnrichmentProbe) {
		p.DataFetched("42", &service.DataSourceResult{StatusCode: 200})
		p.ClaimWritten("user_data")
	})
	enrich(func(p service.ClaimEnrichmentProbe) {
		p.DataFetched("42", &service.DataSourceResult{StatusCode: 404})
		p.SentinelWritten("user_data", 404)
	})
	enrich(func(p service.ClaimEnrichmentProbe) {
		p.DataFetched("42", &service.DataSourceResult{StatusCode: 404})
		p.ClaimSkipped("user_data", "directory returned status 404")
	})
	enrich(func(p service.ClaimEnrichmentProbe) {
		p.DataFetchFailed("42", errors.New("directory unavailable"))
	})
	enrich(func(p service.ClaimEnrichmentProbe) {
		p.UserIDMissing("userId")
	})
	enrich(func(p service.ClaimEnrichmentProbe) {
		p.DataFetched("42", &service.DataSourceResult{StatusCode: 200})
		p.PayloadInvalid(errors.New("payload is not a JSON object"))
	})

	for _, outcome := range []string{OutcomeWritten, OutcomeSentinel, OutcomeSkipped, OutcomeFetchFailed, OutcomeUserIDMissing, OutcomeInvalid} {
		assert.Equal(t, 1.0,
			testutil.ToFloat64(metrics.ClaimEnrichments.WithLabelValues("user_data", "access_token", outcome)),
			"outcome %s", outcome)
	}
}

func TestMetricsObserver_EndCountsOnce(t *testing.T) {
	metrics, _, observer := newTestMetrics(t)

	_, p := observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeIDToken)
	p.ClaimWritten("user_data")
	p.End()
	p.End()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ClaimEnrichments.WithLabelValues("user_data", "id_token", OutcomeWritten)))
}

func TestMetricsObserver_FetchDuration(t *testing.T) {
	metrics, clk, observer := newTestMetrics(t)

	_, p := observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeAccessToken)
	clk.Advance(250 * time.Millisecond)
	p.DataFetched("42", &service.DataSourceResult{StatusCode: 200})
	p.End()

	_, p = observer.ClaimEnrichmentStarted(context.Background(), "user_data", "directory", service.TokenTypeAccessToken)
	clk.Advance(time.Second)
	p.DataFetchFailed("42", errors.New("timeout"))
	p.End()

	assert.Equal(t, 2, testutil.CollectAndCount(metrics.FetchDuration))

	var m dto.Metric
	require.NoError(t, metrics.FetchDuration.WithLabelValues("directory", "200").(prometheus.Metric).Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.25, m.GetHistogram().GetSampleSum(), 1e-9)

	m.Reset()
	require.NoError(t, metrics.FetchDuration.WithLabelValues("directory", "error").(prometheus.Metric).Write(&m))
	assert.InDelta(t, 1.0, m.GetHistogram().GetSampleSum(), 1e-9)
}

func TestMetricsObserver_IssuanceAndAuthz(t *testing.T) {
	metrics, _, observer := newTestMetrics(t)
	ctx := context.Background()

	_, issuance := observer.TokenIssuanceStarted(ctx, "42", "", []service.TokenType{service.TokenTypeAccessToken, service.TokenTypeIDToken})
	issuance.TokenTypeIssuanceSucceeded(service.TokenTypeAccessToken, &service.Token{})
	issuance.IssuerNotFound(service.TokenTypeIDToken, service.ErrIssuerNotFound)
	issuance.End()

	_, allowed := observer.AuthzCheckStarted(ctx)
	allowed.TokensIssued([]service.TokenType{service.TokenTypeAccessToken})
	allowed.End()

	_, missing := observer.AuthzCheckStarted(ctx)
	missing.SubjectMissing("userId")
	missing.End()

	_, denied := observer.AuthzCheckStarted(ctx)
	denied.TokenIssuanceFailed(errors.New("signing failed"))
	denied.End()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenIssuances.WithLabelValues("access_token", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenIssuances.WithLabelValues("id_token", OutcomeIssuerNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzChecks.WithLabelValues(OutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzChecks.WithLabelValues(OutcomeNoSubject)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzChecks.WithLabelValues(OutcomeDenied)))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewMetrics(reg, "userclaims")
	require.NoError(t, err)
	second, err := NewMetrics(reg, "userclaims")
	require.NoError(t, err)

	second.AuthzChecks.WithLabelValues(OutcomeAllowed).Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.AuthzChecks.WithLabelValues(OutcomeAllowed)))
}

func TestNewMetricsObserver_RequiresMetrics(t *testing.T) {
	_, err := NewMetricsObserver(MetricsObserverConfig{})
	assert.Error(t, err)
}
