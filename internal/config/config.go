package config

// Config is the root configuration structure for userclaims
type Config struct {
	// Server configuration (gRPC and HTTP ports)
	Server ServerConfig `koanf:"server"`

	// IssuerURL is the iss claim of issued tokens
	IssuerURL string `koanf:"issuer_url" usage:"issuer URL (iss claim of issued tokens)"`

	// Audience is the aud claim of issued tokens (omitted when empty)
	Audience string `koanf:"audience" usage:"audience of issued tokens (aud claim)"`

	// Signing configures the token signing key
	Signing SigningConfig `koanf:"signing"`

	// Directory configures the user directory service
	Directory DirectoryConfig `koanf:"directory"`

	// DataSources are additional named data sources.
	// A "directory" data source backed by Directory is always available.
	DataSources []DataSourceConfig `koanf:"data_sources"`

	// Mappers are the claim mappers applied during issuance, in order
	Mappers []MapperConfig `koanf:"mappers"`

	// Issuers configuration for different token types.
	// When empty, access token, ID token and user-info issuers are created.
	Issuers []IssuerConfig `koanf:"issuers"`

	// AuthzServer configuration for ext_authz service
	AuthzServer *AuthzServerConfig `koanf:"authz_server"`

	// Fixtures for hermetic testing (HTTP rules, directory users, fixture files)
	Fixtures []FixtureConfig `koanf:"fixtures"`

	// Observability configuration (logging, metrics)
	Observability *ObservabilityConfig `koanf:"observability"`
}

// ServerConfig contains network-level server settings
type ServerConfig struct {
	// GRPCPort is the port for gRPC services (ext_authz, health, reflection)
	GRPCPort int `koanf:"grpc_port" usage:"gRPC server port (ext_authz, health)"`

	// HTTPPort is the port for HTTP services (token, userinfo, JWKS, health, metrics)
	HTTPPort int `koanf:"http_port" usage:"HTTP server port (token, userinfo, JWKS, metrics)"`

	// JWKSRefreshInterval is how long a rendered JWK set is served before being rebuilt
	JWKSRefreshInterval string `koanf:"jwks_refresh_interval" usage:"how long the JWK set is cached, e.g. 1m"`
}

// SigningConfig configures the signing key shared by the JWT issuers
type SigningConfig struct {
	// KeyType is the generated key type: EC-P256, EC-P384 or RSA-2048
	KeyType string `koanf:"key_type" usage:"signing key type: EC-P256, EC-P384, RSA-2048"`

	// Algorithm overrides the default algorithm for the key type
	Algorithm string `koanf:"algorithm" usage:"signing algorithm (defaults by key type)"`

	// PrivateKeyFile loads a PEM private key instead of generating one
	PrivateKeyFile string `koanf:"private_key_file" usage:"PEM private key file (generated when empty)"`
}

// DirectoryConfig configures the user directory client
type DirectoryConfig struct {
	// BaseURL is the directory base URL; users are fetched from <base>/user/{id}
	BaseURL string `koanf:"base_url" usage:"user directory base URL"`

	// UserAgent is sent on every directory request
	UserAgent string `koanf:"user_agent" usage:"User-Agent sent to the user directory"`

	// Timeout bounds each directory request
	Timeout string `koanf:"timeout" usage:"user directory request timeout, e.g. 30s"`
}

// DataSourceConfig configures a data source
type DataSourceConfig struct {
	// Name uniquely identifies this data source
	Name string `koanf:"name"`

	// Type selects the data source implementation
	// Options: "directory", "lua"
	Type string `koanf:"type"`

	// Directory data source fields; empty fields fall back to the top-level directory section
	Directory *DirectoryConfig `koanf:"directory"`

	// Lua data source fields
	ScriptFile string         `koanf:"script_file"` // Path to Lua script
	Script     string         `koanf:"script"`      // Inline Lua script (alternative to ScriptFile)
	Config     map[string]any `koanf:"config"`      // Config values available to script

	// HTTP configuration
	HTTPConfig *HTTPConfig `koanf:"http"`
}

// HTTPConfig configures HTTP client for Lua data sources
type HTTPConfig struct {
	// Timeout for HTTP requests (default: 30s)
	Timeout string `koanf:"timeout"` // Duration string like "30s"

	// UserAgent sent when the script does not set one (default: the directory user agent)
	UserAgent string `koanf:"user_agent"`
}

// MapperConfig configures a claim mapper and the token types it contributes to
type MapperConfig struct {
	// Name identifies the mapper in logs and metrics (defaults to the claim name or type)
	Name string `koanf:"name"`

	// Type selects the mapper implementation
	// Options: "user_directory", "cel", "static"
	Type string `koanf:"type"`

	// Token types the mapper contributes to. Each defaults to true.
	AccessTokenClaim   *bool `koanf:"access_token_claim"`
	IDTokenClaim       *bool `koanf:"id_token_claim"`
	UserInfoTokenClaim *bool `koanf:"userinfo_token_claim"`

	// User directory mapper fields
	ClaimName         string   `koanf:"claim_name"`
	DataSource        string   `koanf:"data_source"`
	ValueFormat       string   `koanf:"value_format"` // "object" (default) or "string"
	UserIDHeader      string   `koanf:"user_id_header"`
	AllowedAttributes []string `koanf:"allowed_attributes"`
	DeniedAttributes  []string `koanf:"denied_attributes"`

	// CEL mapper fields
	ScriptFile string `koanf:"script_file"` // Path to CEL script file
	Script     string `koanf:"script"`      // Inline CEL script (alternative to ScriptFile)

	// Static mapper fields
	Claims map[string]any `koanf:"claims"`
}

// IssuerConfig configures a token issuer
type IssuerConfig struct {
	// TokenType is the token type this issuer handles
	// Options: "access_token", "id_token", "userinfo"
	TokenType string `koanf:"token_type"`

	// Type selects the issuer implementation
	// Options: "jwt" (access and ID tokens), "userinfo"
	// Defaults by token type.
	Type string `koanf:"type"`

	// IssuerURL overrides the top-level issuer_url for this issuer
	IssuerURL string `koanf:"issuer_url"`

	// TTL of issued tokens
	TTL string `koanf:"ttl"` // Duration string like "5m"
}

// AuthzServerConfig configures the ext_authz authorization server
type AuthzServerConfig struct {
	// SubjectHeader is the request header carrying the subject (default: "userId")
	SubjectHeader string `koanf:"subject_header" usage:"request header carrying the ext_authz subject"`

	// TokenTypes specifies which token types to issue and how to deliver them
	TokenTypes []TokenTypeConfig `koanf:"token_types"`
}

// TokenTypeConfig specifies a token type to issue via ext_authz
type TokenTypeConfig struct {
	// Type is the token type, e.g. "access_token" or "id_token"
	Type string `koanf:"type"`

	// HeaderName is the HTTP header to use for this token
	// e.g., "Authorization", "X-Id-Token"
	HeaderName string `koanf:"header_name"`

	// Prefix is prepended to the token value, e.g. "Bearer "
	Prefix string `koanf:"prefix"`
}

// FixtureConfig configures a fixture for hermetic testing
type FixtureConfig struct {
	// Type selects the fixture type
	// Options: "http_rule", "directory", "file"
	Type string `koanf:"type"`

	// HTTP rule fields (when Type is "http_rule")
	Request  FixtureRequest  `koanf:"request"`
	Response FixtureResponse `koanf:"response"`

	// Directory fields (when Type is "directory")
	BaseURL string                          `koanf:"base_url"` // defaults to directory.base_url
	Users   map[string]DirectoryUserFixture `koanf:"users"`

	// File fields (when Type is "file"): a fixture file or a directory of them
	Path string `koanf:"path"`
}

// DirectoryUserFixture is the directory's answer for one user id
type DirectoryUserFixture struct {
	// Status defaults to 200
	Status int `koanf:"status"`

	// Attributes are served as a JSON object
	Attributes map[string]any `koanf:"attributes"`

	// Body is served verbatim as text/plain when Attributes is empty
	Body string `koanf:"body"`

	// Delay before the response, e.g. "2s"
	Delay string `koanf:"delay"`
}

// FixtureRequest defines request matching criteria for HTTP fixtures
type FixtureRequest struct {
	// Method is the HTTP method to match (e.g., "GET", "POST", "*" for any)
	Method string `koanf:"method"`

	// URL is the URL to match (exact or pattern based on URLType)
	URL string `koanf:"url"`

	// URLType specifies how to match the URL
	// Options: "exact" (default), "pattern" (regex)
	URLType string `koanf:"url_type"`

	// Headers are optional headers to match
	Headers map[string]string `koanf:"headers"`
}

// FixtureResponse defines the HTTP response to return for a fixture
type FixtureResponse struct {
	// StatusCode is the HTTP status code (e.g., 200, 404)
	StatusCode int `koanf:"status"`

	// Headers are optional response headers
	Headers map[string]string `koanf:"headers"`

	// Body is the response body content
	Body string `koanf:"body"`
}

// ObservabilityConfig configures application observability
type ObservabilityConfig struct {
	// Type selects the observer implementation
	// Options: "logging", "metrics", "noop", "composite"
	Type string `koanf:"type" usage:"observer type: logging, metrics, noop, composite"`

	// LogLevel sets the default log level for logging observer
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `koanf:"log_level" usage:"default log level: debug, info, warn, error"`

	// LogFormat sets the log format
	// Options: "json", "text"
	// Default: "json"
	LogFormat string `koanf:"log_format" usage:"log format: json, text"`

	// MetricsNamespace prefixes metric names (default: "userclaims")
	MetricsNamespace string `koanf:"metrics_namespace" usage:"Prometheus metric namespace"`

	// Event-specific logging configuration
	TokenIssuance   *EventLoggingConfig `koanf:"token_issuance"`
	ClaimEnrichment *EventLoggingConfig `koanf:"claim_enrichment"`
	AuthzCheck      *EventLoggingConfig `koanf:"authz_check"`

	// Composite observer fields - allows multiple observers
	Observers []ObservabilityConfig `koanf:"observers"`
}

// EventLoggingConfig configures logging for a specific event type
type EventLoggingConfig struct {
	// LogLevel overrides the default log level for this event
	// Options: "debug", "info", "warn", "error"
	LogLevel string `koanf:"log_level"`

	// Enabled controls whether this event type is logged
	// Default: true
	Enabled *bool `koanf:"enabled"`
}
