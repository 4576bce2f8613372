package httpfixture

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DirectoryFixture is a specialized HTTP fixture that plays the user directory
// service. It answers GET <base>/user/{id} from an in-memory user table and
// records every lookup so tests can assert how often the directory was called.
type DirectoryFixture struct {
	base *url.URL

	mu       sync.Mutex
	users    map[string]*Fixture
	requests []string
}

// DirectoryFixtureConfig configures a directory fixture
type DirectoryFixtureConfig struct {
	// BaseURL is the directory base URL the fixture answers for
	BaseURL string
}

// NewDirectoryFixture creates an empty directory fixture
func NewDirectoryFixture(cfg DirectoryFixtureConfig) (*DirectoryFixture, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base_url must include a host: %q", cfg.BaseURL)
	}

	return &DirectoryFixture{
		base:  base,
		users: make(map[string]*Fixture),
	}, nil
}

// SetUser registers a user whose record is returned as a JSON object
func (f *DirectoryFixture) SetUser(userID string, attributes map[string]any) error {
	body, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("failed to encode user %s: %w", userID, err)
	}
	f.SetResponse(userID, &Fixture{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	})
	return nil
}

// SetUserText registers a user whose record is returned as plain text
func (f *DirectoryFixture) SetUserText(userID string, body string) {
	f.SetResponse(userID, &Fixture{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       body,
	})
}

// SetStatus makes lookups of userID return status with an empty body
func (f *DirectoryFixture) SetStatus(userID string, status int) {
	f.SetResponse(userID, &Fixture{StatusCode: status})
}

// SetDelay delays lookups of an already registered user
func (f *DirectoryFixture) SetDelay(userID string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fixture, ok := f.users[userID]; ok {
		fixture.Delay = &delay
	}
}

// SetResponse registers an arbitrary response for userID
func (f *DirectoryFixture) SetResponse(userID string, fixture *Fixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = fixture
}

// GetFixture implements FixtureProvider.
// Unknown users get 404; requests outside the directory get nil.
func (f *DirectoryFixture) GetFixture(req *http.Request) *Fixture {
	if req.Method != http.MethodGet {
		return nil
	}
	if req.URL.Scheme != f.base.Scheme || req.URL.Host != f.base.Host {
		return nil
	}

	prefix := f.base.Path + "/user/"
	escaped := req.URL.EscapedPath()
	if !strings.HasPrefix(escaped, prefix) {
		return nil
	}
	userID, err := url.PathUnescape(strings.TrimPrefix(escaped, prefix))
	if err != nil || userID == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, userID)

	if fixture, ok := f.users[userID]; ok {
		copied := *fixture
		return &copied
	}
	return &Fixture{
		StatusCode: http.StatusNotFound,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       "user not found",
	}
}

// Requests returns the user ids looked up so far, in order
func (f *DirectoryFixture) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// RequestCount returns how many times userID was looked up
func (f *DirectoryFixture) RequestCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, id := range f.requests {
		if id == userID {
			count++
		}
	}
	return count
}

// Transport returns a strict transport serving only this fixture
func (f *DirectoryFixture) Transport() *Transport {
	return NewTransport(TransportConfig{Provider: f, Strict: true})
}
