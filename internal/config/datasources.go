package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/project-kessel/userclaims/internal/datasource"
	"github.com/project-kessel/userclaims/internal/directory"
	luaservices "github.com/project-kessel/userclaims/internal/lua"
	"github.com/project-kessel/userclaims/internal/mapper"
	"github.com/project-kessel/userclaims/internal/service"
)

// NewDirectoryClient creates a user directory client from configuration
func NewDirectoryClient(cfg DirectoryConfig, transport http.RoundTripper) (*directory.Client, error) {
	var timeout time.Duration
	if cfg.Timeout != "" {
		duration, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid directory timeout: %w", err)
		}
		timeout = duration
	}

	return directory.NewClient(directory.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   timeout,
		Transport: transport,
	}), nil
}

// NewDataSourceRegistry creates a data source registry from configuration.
// The default directory data source is registered first, so a configured
// data source with the same name replaces it.
func NewDataSourceRegistry(cfg Config, transport http.RoundTripper) (*service.DataSourceRegistry, error) {
	registry := service.NewDataSourceRegistry()

	client, err := NewDirectoryClient(cfg.Directory, transport)
	if err != nil {
		return nil, err
	}
	defaultSource, err := datasource.NewDirectoryDataSource(datasource.DirectoryDataSourceConfig{
		Name:      mapper.DefaultDataSource,
		Directory: client,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(defaultSource)

	for _, dsCfg := range cfg.DataSources {
		ds, err := newDataSource(dsCfg, cfg.Directory, transport)
		if err != nil {
			return nil, fmt.Errorf("failed to create data source %s: %w", dsCfg.Name, err)
		}
		registry.Register(ds)
	}

	return registry, nil
}

// newDataSource creates a data source from configuration
func newDataSource(cfg DataSourceConfig, defaults DirectoryConfig, transport http.RoundTripper) (service.DataSource, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("data source name is required")
	}

	switch cfg.Type {
	case "directory":
		return newDirectoryDataSource(cfg, defaults, transport)
	case "lua":
		return newLuaDataSource(cfg, defaults, transport)
	default:
		return nil, fmt.Errorf("unknown data source type: %s (supported: directory, lua)", cfg.Type)
	}
}

// newDirectoryDataSource creates a directory data source, filling unset fields from defaults
func newDirectoryDataSource(cfg DataSourceConfig, defaults DirectoryConfig, transport http.RoundTripper) (service.DataSource, error) {
	dirCfg := defaults
	if cfg.Directory != nil {
		if cfg.Directory.BaseURL != "" {
			dirCfg.BaseURL = cfg.Directory.BaseURL
		}
		if cfg.Directory.UserAgent != "" {
			dirCfg.UserAgent = cfg.Directory.UserAgent
		}
		if cfg.Directory.Timeout != "" {
			dirCfg.Timeout = cfg.Directory.Timeout
		}
	}

	client, err := NewDirectoryClient(dirCfg, transport)
	if err != nil {
		return nil, err
	}

	return datasource.NewDirectoryDataSource(datasource.DirectoryDataSourceConfig{
		Name:      cfg.Name,
		Directory: client,
	})
}

// newLuaDataSource creates a Lua data source
func newLuaDataSource(cfg DataSourceConfig, defaults DirectoryConfig, transport http.RoundTripper) (service.DataSource, error) {
	// Get script content (either from file or inline)
	script := cfg.Script
	if cfg.ScriptFile != "" {
		content, err := os.ReadFile(cfg.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read script file %s: %w", cfg.ScriptFile, err)
		}
		script = string(content)
	}

	if script == "" {
		return nil, fmt.Errorf("lua data source requires either script or script_file")
	}

	// Create config source from map
	var configSource luaservices.ConfigSource
	if cfg.Config != nil {
		configSource = luaservices.NewMapConfigSource(cfg.Config)
	}

	httpConfig, err := buildHTTPConfig(cfg.HTTPConfig, defaults, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP config: %w", err)
	}

	ds, err := datasource.NewLuaDataSource(datasource.LuaDataSourceConfig{
		Name:         cfg.Name,
		Script:       script,
		ConfigSource: configSource,
		HTTPConfig:   httpConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lua data source: %w", err)
	}

	return ds, nil
}

// buildHTTPConfig creates an HTTPServiceConfig from the config structure
func buildHTTPConfig(cfg *HTTPConfig, defaults DirectoryConfig, transport http.RoundTripper) (*luaservices.HTTPServiceConfig, error) {
	httpServiceCfg := &luaservices.HTTPServiceConfig{
		Timeout:   30 * time.Second,
		UserAgent: defaults.UserAgent,
		Transport: transport,
	}

	if cfg == nil {
		return httpServiceCfg, nil
	}

	if cfg.Timeout != "" {
		duration, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid http timeout: %w", err)
		}
		httpServiceCfg.Timeout = duration
	}
	if cfg.UserAgent != "" {
		httpServiceCfg.UserAgent = cfg.UserAgent
	}

	return httpServiceCfg, nil
}
