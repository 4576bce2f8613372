package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/project-kessel/userclaims/internal/probe"
	"github.com/project-kessel/userclaims/internal/service"
)

// DefaultMetricsNamespace prefixes metric names when none is configured
const DefaultMetricsNamespace = "userclaims"

// NewObserver creates an application observer from configuration.
// This is a convenience wrapper that creates its own logger from cfg.
func NewObserver(cfg *ObservabilityConfig, reg prometheus.Registerer) (service.ApplicationObserver, error) {
	return NewObserverWithLogger(cfg, NewLogger(cfg), reg)
}

// NewObserverWithLogger creates an application observer using the provided logger.
// Metrics observers register their collectors with reg.
func NewObserverWithLogger(cfg *ObservabilityConfig, logger *slog.Logger, reg prometheus.Registerer) (service.ApplicationObserver, error) {
	if cfg == nil {
		// Default to no-op observer if not configured
		return &service.NoOpApplicationObserver{}, nil
	}

	switch cfg.Type {
	case "logging":
		return probe.NewLoggingObserverWithConfig(probe.LoggingObserverConfig{
			Logger: logger,
		}), nil
	case "metrics":
		return newMetricsObserver(cfg, reg)
	case "noop", "":
		return &service.NoOpApplicationObserver{}, nil
	case "composite":
		return newCompositeObserver(cfg, logger, reg)
	default:
		return nil, fmt.Errorf("unknown observability type: %s (supported: logging, metrics, noop, composite)", cfg.Type)
	}
}

// NewLogger creates a structured logger from the observability configuration.
// Returns slog.Default() if cfg is nil.
func NewLogger(cfg *ObservabilityConfig) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *ObservabilityConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		return slog.Default()
	}

	defaultLevel := parseLogLevel(cfg.LogLevel)
	eventLevels := eventLogLevels(cfg)

	// The base handler must let through the most verbose event level;
	// per-event filtering happens in the wrapping handler.
	baseLevel := defaultLevel
	for _, level := range eventLevels {
		baseLevel = min(baseLevel, level)
	}

	return slog.New(probe.NewEventFilteringHandler(
		createHandler(w, cfg.LogFormat, baseLevel),
		defaultLevel,
		eventLevels,
	))
}

// newMetricsObserver creates a Prometheus metrics observer
func newMetricsObserver(cfg *ObservabilityConfig, reg prometheus.Registerer) (service.ApplicationObserver, error) {
	namespace := cfg.MetricsNamespace
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	metrics, err := probe.NewMetrics(reg, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return probe.NewMetricsObserver(probe.MetricsObserverConfig{Metrics: metrics})
}

// newCompositeObserver creates a composite observer that delegates to multiple observers
func newCompositeObserver(cfg *ObservabilityConfig, logger *slog.Logger, reg prometheus.Registerer) (service.ApplicationObserver, error) {
	if len(cfg.Observers) == 0 {
		return nil, fmt.Errorf("composite observer requires at least one sub-observer")
	}

	var observers []service.ApplicationObserver
	for i, subCfg := range cfg.Observers {
		observer, err := NewObserverWithLogger(&subCfg, logger, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer %d: %w", i, err)
		}
		observers = append(observers, observer)
	}

	return service.NewCompositeObserver(observers...), nil
}

// eventLogLevels builds the per-event level overrides
func eventLogLevels(cfg *ObservabilityConfig) map[string]slog.Level {
	eventLevels := make(map[string]slog.Level)

	events := map[string]*EventLoggingConfig{
		probe.EventTokenIssuance:   cfg.TokenIssuance,
		probe.EventClaimEnrichment: cfg.ClaimEnrichment,
		probe.EventAuthzCheck:      cfg.AuthzCheck,
	}

	for event, eventCfg := range events {
		if eventCfg == nil {
			continue
		}
		if eventCfg.Enabled != nil && !*eventCfg.Enabled {
			eventLevels[event] = probe.LevelDisabled
		} else if eventCfg.LogLevel != "" {
			eventLevels[event] = parseLogLevel(eventCfg.LogLevel)
		}
	}

	return eventLevels
}

// createHandler creates a slog handler based on format and level
func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// parseLogLevel parses a log level string
func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
