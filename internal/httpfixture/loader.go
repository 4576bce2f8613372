package httpfixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadFixturesFromFile loads fixtures from a JSON or YAML file
func LoadFixturesFromFile(path string) (*RuleBasedProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fixtureSet FixtureSet

	// Detect format by extension
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fixtureSet); err != nil {
			return nil, fmt.Errorf("failed to parse YAML fixtures: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &fixtureSet); err != nil {
			return nil, fmt.Errorf("failed to parse JSON fixtures: %w", err)
		}
	}

	provider, err := NewRuleBasedProvider(fixtureSet.Rules)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return provider, nil
}

// LoadFixturesFromDir loads all fixture files from a directory, in name order
func LoadFixturesFromDir(dir string) (*RuleBasedProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture directory: %w", err)
	}

	var allRules []HTTPFixtureRule

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			provider, err := LoadFixturesFromFile(path)
			if err != nil {
				return nil, err
			}
			allRules = append(allRules, provider.Rules()...)
		}
	}

	return NewRuleBasedProvider(allRules)
}
