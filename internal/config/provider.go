package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/httpfixture"
	"github.com/project-kessel/userclaims/internal/keys"
	"github.com/project-kessel/userclaims/internal/server"
	"github.com/project-kessel/userclaims/internal/service"
)

// Provider constructs all application components from configuration.
// Components are built lazily and cached, so every consumer shares one instance.
type Provider struct {
	config *Config
	clock  clock.Clock

	logger             *slog.Logger
	metricsRegistry    *prometheus.Registry
	observer           service.ApplicationObserver
	transport          http.RoundTripper
	transportBuilt     bool
	dataSourceRegistry *service.DataSourceRegistry
	mappers            []*service.MapperRegistration
	mappersBuilt       bool
	signer             *keys.MemorySigner
	issuerRegistry     *service.SimpleRegistry
	tokenService       *service.TokenService
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
		clock:  clock.NewSystemClock(),
	}
}

// SetClock replaces the clock used for issued tokens and fixture delays.
// Must be called before any component is built.
func (p *Provider) SetClock(clk clock.Clock) {
	p.clock = clk
}

// SetObserver sets the application observer for all components built by this provider.
// Must be called before TokenService() or any method that depends on the observer.
func (p *Provider) SetObserver(observer service.ApplicationObserver) {
	p.observer = observer
}

// Logger returns the structured logger configured by the observability section
func (p *Provider) Logger() *slog.Logger {
	if p.logger == nil {
		p.logger = NewLogger(p.config.Observability)
	}
	return p.logger
}

// MetricsRegistry returns the Prometheus registry served on /metrics.
// It carries the Go runtime and process collectors.
func (p *Provider) MetricsRegistry() *prometheus.Registry {
	if p.metricsRegistry == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		p.metricsRegistry = reg
	}
	return p.metricsRegistry
}

// Observer returns the configured application observer.
// If SetObserver was called, returns that observer.
// Otherwise, creates one from config using Logger and MetricsRegistry.
func (p *Provider) Observer() (service.ApplicationObserver, error) {
	if p.observer != nil {
		return p.observer, nil
	}

	observer, err := NewObserverWithLogger(p.config.Observability, p.Logger(), p.MetricsRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	p.observer = observer
	return observer, nil
}

// HTTPTransport returns an HTTP RoundTripper serving the configured fixtures.
// Returns nil when no fixtures are configured; callers then use the default transport.
// The fixture transport is strict: requests without a fixture fail.
func (p *Provider) HTTPTransport() (http.RoundTripper, error) {
	if p.transportBuilt {
		return p.transport, nil
	}

	provider, err := BuildHTTPFixtureProvider(p.config.Fixtures, p.config.Directory.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP fixtures: %w", err)
	}

	p.transportBuilt = true
	if provider == nil {
		return nil, nil
	}

	p.transport = httpfixture.NewTransport(httpfixture.TransportConfig{
		Provider: provider,
		Strict:   true,
		Clock:    p.clock,
	})
	return p.transport, nil
}

// DataSourceRegistry returns the configured data source registry
func (p *Provider) DataSourceRegistry() (*service.DataSourceRegistry, error) {
	if p.dataSourceRegistry != nil {
		return p.dataSourceRegistry, nil
	}

	transport, err := p.HTTPTransport()
	if err != nil {
		return nil, err
	}

	registry, err := NewDataSourceRegistry(*p.config, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create data source registry: %w", err)
	}

	p.dataSourceRegistry = registry
	return registry, nil
}

// Mappers returns the configured claim mapper registrations, in order
func (p *Provider) Mappers() ([]*service.MapperRegistration, error) {
	if p.mappersBuilt {
		return p.mappers, nil
	}

	observer, err := p.Observer()
	if err != nil {
		return nil, err
	}

	mappers, err := NewMapperRegistrations(p.config.Mappers, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim mappers: %w", err)
	}

	p.mappers = mappers
	p.mappersBuilt = true
	return mappers, nil
}

// Signer returns the token signer shared by the JWT issuers
func (p *Provider) Signer() (*keys.MemorySigner, error) {
	if p.signer != nil {
		return p.signer, nil
	}

	signer, err := NewSigner(p.config.Signing)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	p.signer = signer
	return signer, nil
}

// IssuerRegistry returns the configured issuer registry
func (p *Provider) IssuerRegistry() (*service.SimpleRegistry, error) {
	if p.issuerRegistry != nil {
		return p.issuerRegistry, nil
	}

	signer, err := p.Signer()
	if err != nil {
		return nil, err
	}

	registry, err := NewIssuerRegistry(*p.config, signer, p.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create issuer registry: %w", err)
	}

	p.issuerRegistry = registry
	return registry, nil
}

// TokenService returns the configured token service
func (p *Provider) TokenService() (*service.TokenService, error) {
	if p.tokenService != nil {
		return p.tokenService, nil
	}

	dataSourceRegistry, err := p.DataSourceRegistry()
	if err != nil {
		return nil, err
	}

	mappers, err := p.Mappers()
	if err != nil {
		return nil, err
	}

	issuerRegistry, err := p.IssuerRegistry()
	if err != nil {
		return nil, err
	}

	observer, err := p.Observer()
	if err != nil {
		return nil, err
	}

	p.tokenService = service.NewTokenService(
		p.config.Audience,
		dataSourceRegistry,
		mappers,
		issuerRegistry,
		observer,
	)
	return p.tokenService, nil
}

// AuthzServerTokenTypes returns the configured token types for ext_authz.
// Returns nil when none are configured, leaving the server defaults in place.
func (p *Provider) AuthzServerTokenTypes() ([]server.TokenTypeSpec, error) {
	if p.config.AuthzServer == nil || len(p.config.AuthzServer.TokenTypes) == 0 {
		return nil, nil
	}

	var tokenTypes []server.TokenTypeSpec
	for _, ttCfg := range p.config.AuthzServer.TokenTypes {
		if ttCfg.Type == "" {
			return nil, fmt.Errorf("token type is required")
		}

		tokenType, err := service.ParseTokenType(ttCfg.Type)
		if err != nil {
			return nil, err
		}

		if ttCfg.HeaderName == "" {
			return nil, fmt.Errorf("header_name is required for token type %s", ttCfg.Type)
		}

		tokenTypes = append(tokenTypes, server.TokenTypeSpec{
			Type:       tokenType,
			HeaderName: ttCfg.HeaderName,
			Prefix:     ttCfg.Prefix,
		})
	}

	return tokenTypes, nil
}

// AuthzSubjectHeader returns the header carrying the ext_authz subject, or "" for the default
func (p *Provider) AuthzSubjectHeader() string {
	if p.config.AuthzServer == nil {
		return ""
	}
	return p.config.AuthzServer.SubjectHeader
}

// ServerConfig builds the server configuration with every handler wired
func (p *Provider) ServerConfig() (server.Config, error) {
	tokenService, err := p.TokenService()
	if err != nil {
		return server.Config{}, err
	}

	issuerRegistry, err := p.IssuerRegistry()
	if err != nil {
		return server.Config{}, err
	}

	observer, err := p.Observer()
	if err != nil {
		return server.Config{}, err
	}

	authzTokenTypes, err := p.AuthzServerTokenTypes()
	if err != nil {
		return server.Config{}, fmt.Errorf("failed to get authz token types: %w", err)
	}

	refreshInterval := server.DefaultJWKSRefreshInterval
	if p.config.Server.JWKSRefreshInterval != "" {
		refreshInterval, err = time.ParseDuration(p.config.Server.JWKSRefreshInterval)
		if err != nil {
			return server.Config{}, fmt.Errorf("invalid jwks_refresh_interval: %w", err)
		}
	}

	return server.Config{
		GRPCPort: p.config.Server.GRPCPort,
		HTTPPort: p.config.Server.HTTPPort,
		AuthzServer: server.NewAuthzServer(server.AuthzServerConfig{
			TokenService:  tokenService,
			TokenTypes:    authzTokenTypes,
			SubjectHeader: p.AuthzSubjectHeader(),
			Observer:      observer,
		}),
		TokenHandler: server.NewTokenHandler(server.TokenHandlerConfig{
			TokenService:  tokenService,
			SubjectHeader: p.AuthzSubjectHeader(),
		}),
		JWKSHandler: server.NewJWKSHandler(server.JWKSHandlerConfig{
			KeySource:       issuerRegistry,
			RefreshInterval: refreshInterval,
			Clock:           p.clock,
			Logger:          p.Logger(),
		}),
		Gatherer: p.MetricsRegistry(),
		Logger:   p.Logger(),
	}, nil
}

// Server builds the gRPC and HTTP server
func (p *Provider) Server() (*server.Server, error) {
	cfg, err := p.ServerConfig()
	if err != nil {
		return nil, err
	}
	return server.New(cfg), nil
}
