package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/project-kessel/userclaims/internal/httpfixture"
)

// BuildHTTPFixtureProvider creates a composite HTTP fixture provider from fixture configurations
// Returns nil if no fixtures are configured (normal production mode).
// Directory fixtures without a base_url answer for defaultDirectoryURL.
func BuildHTTPFixtureProvider(fixtures []FixtureConfig, defaultDirectoryURL string) (httpfixture.FixtureProvider, error) {
	if len(fixtures) == 0 {
		return nil, nil
	}

	var rules []httpfixture.HTTPFixtureRule
	var providers httpfixture.ChainProvider

	for i, f := range fixtures {
		switch f.Type {
		case "http_rule":
			rules = append(rules, httpfixture.HTTPFixtureRule{
				Request: httpfixture.FixtureRequest{
					Method:  f.Request.Method,
					URL:     f.Request.URL,
					URLType: f.Request.URLType,
					Headers: f.Request.Headers,
				},
				Response: httpfixture.Fixture{
					StatusCode: f.Response.StatusCode,
					Headers:    f.Response.Headers,
					Body:       f.Response.Body,
				},
			})

		case "directory":
			directory, err := buildDirectoryFixture(f, defaultDirectoryURL)
			if err != nil {
				return nil, fmt.Errorf("fixture %d: %w", i, err)
			}
			providers = append(providers, directory)

		case "file":
			provider, err := loadFixtureFiles(f.Path)
			if err != nil {
				return nil, fmt.Errorf("fixture %d: %w", i, err)
			}
			providers = append(providers, provider)

		default:
			return nil, fmt.Errorf("fixture %d: unknown fixture type: %s (supported: http_rule, directory, file)", i, f.Type)
		}
	}

	// Inline rules take precedence over directory and file fixtures
	if len(rules) > 0 {
		inline, err := httpfixture.NewRuleBasedProvider(rules)
		if err != nil {
			return nil, fmt.Errorf("http_rule fixtures: %w", err)
		}
		providers = append(httpfixture.ChainProvider{inline}, providers...)
	}

	return providers, nil
}

// buildDirectoryFixture creates a directory fixture serving the configured users
func buildDirectoryFixture(f FixtureConfig, defaultDirectoryURL string) (*httpfixture.DirectoryFixture, error) {
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = defaultDirectoryURL
	}

	directory, err := httpfixture.NewDirectoryFixture(httpfixture.DirectoryFixtureConfig{BaseURL: baseURL})
	if err != nil {
		return nil, fmt.Errorf("directory fixture: %w", err)
	}

	for userID, user := range f.Users {
		fixture := &httpfixture.Fixture{
			StatusCode: user.Status,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       user.Body,
		}
		if fixture.StatusCode == 0 {
			fixture.StatusCode = http.StatusOK
		}

		if len(user.Attributes) > 0 {
			body, err := json.Marshal(user.Attributes)
			if err != nil {
				return nil, fmt.Errorf("directory fixture user %s: %w", userID, err)
			}
			fixture.Headers["Content-Type"] = "application/json"
			fixture.Body = string(body)
		}

		if user.Delay != "" {
			delay, err := time.ParseDuration(user.Delay)
			if err != nil {
				return nil, fmt.Errorf("directory fixture user %s: invalid delay: %w", userID, err)
			}
			fixture.Delay = &delay
		}

		directory.SetResponse(userID, fixture)
	}

	return directory, nil
}

// loadFixtureFiles loads a fixture file, or every fixture file in a directory
func loadFixtureFiles(path string) (httpfixture.FixtureProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("file fixture requires path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file fixture: %w", err)
	}
	if info.IsDir() {
		return httpfixture.LoadFixturesFromDir(path)
	}
	return httpfixture.LoadFixturesFromFile(path)
}
