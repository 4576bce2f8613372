package config

import (
	"fmt"
	"maps"
	"os"

	"github.com/project-kessel/userclaims/internal/mapper"
	"github.com/project-kessel/userclaims/internal/service"
)

// NewMapperRegistrations creates the claim mapper registrations from configuration, in order
func NewMapperRegistrations(cfgs []MapperConfig, observer service.ClaimEnrichmentObserver) ([]*service.MapperRegistration, error) {
	var registrations []*service.MapperRegistration
	names := make(map[string]bool)

	for i, cfg := range cfgs {
		reg, err := newMapperRegistration(cfg, observer)
		if err != nil {
			return nil, fmt.Errorf("failed to create mapper %d: %w", i, err)
		}
		if names[reg.Name] {
			return nil, fmt.Errorf("duplicate mapper name: %s", reg.Name)
		}
		names[reg.Name] = true
		registrations = append(registrations, reg)
	}

	return registrations, nil
}

// newMapperRegistration creates one claim mapper and binds it to its token types
func newMapperRegistration(cfg MapperConfig, observer service.ClaimEnrichmentObserver) (*service.MapperRegistration, error) {
	name := cfg.Name
	includeIn := includedTokenTypes(cfg)

	switch cfg.Type {
	case "user_directory":
		m, err := mapper.NewDirectoryClaimMapper(mapper.DirectoryClaimMapperConfig{
			ClaimName:         cfg.ClaimName,
			DataSource:        cfg.DataSource,
			ValueFormat:       mapper.ValueFormat(cfg.ValueFormat),
			UserIDHeader:      cfg.UserIDHeader,
			AllowedAttributes: cfg.AllowedAttributes,
			DeniedAttributes:  cfg.DeniedAttributes,
			Observer:          observer,
		})
		if err != nil {
			return nil, fmt.Errorf("user_directory mapper: %w", err)
		}
		if name == "" {
			name = cfg.ClaimName
		}
		return service.NewMapperRegistration(name, m, mapper.DirectoryDescriptor(), includeIn)

	case "cel":
		m, err := newCELMapper(cfg)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = cfg.Type
		}
		return service.NewMapperRegistration(name, m, nil, includeIn)

	case "static":
		if cfg.Claims == nil {
			return nil, fmt.Errorf("static mapper requires claims")
		}
		if name == "" {
			name = cfg.Type
		}
		m := mapper.NewStaticClaimMapper(maps.Clone(cfg.Claims))
		return service.NewMapperRegistration(name, m, nil, includeIn)

	default:
		return nil, fmt.Errorf("unknown claim mapper type: %s (supported: user_directory, cel, static)", cfg.Type)
	}
}

// includedTokenTypes reads the per-token-type flags; an unset flag counts as true
func includedTokenTypes(cfg MapperConfig) service.TokenTypeSet {
	var types []service.TokenType
	if enabled(cfg.AccessTokenClaim) {
		types = append(types, service.TokenTypeAccessToken)
	}
	if enabled(cfg.IDTokenClaim) {
		types = append(types, service.TokenTypeIDToken)
	}
	if enabled(cfg.UserInfoTokenClaim) {
		types = append(types, service.TokenTypeUserInfo)
	}
	return service.NewTokenTypeSet(types...)
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// newCELMapper creates a CEL-based claim mapper
func newCELMapper(cfg MapperConfig) (service.ClaimMapper, error) {
	script := cfg.Script

	// Load from file if script_file is specified
	if cfg.ScriptFile != "" {
		content, err := os.ReadFile(cfg.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read script file %s: %w", cfg.ScriptFile, err)
		}
		script = string(content)
	}

	if script == "" {
		return nil, fmt.Errorf("cel mapper requires script or script_file")
	}

	return mapper.NewCELMapper(script)
}
