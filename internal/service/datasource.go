package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/project-kessel/userclaims/internal/request"
)

// ErrDataSourceNotFound is returned when a mapper asks for an unregistered data source
var ErrDataSourceNotFound = errors.New("data source not found")

// DataSource provides user attributes for claim mapping
// Data sources fetch information from external systems (a user directory, scripts)
// to enrich issued tokens.
type DataSource interface {
	// Name identifies this data source.
	// The name is used as a key for lookups in the registry.
	Name() string

	// Fetch retrieves data based on the input.
	// Returns serialized data to avoid unnecessary serialization/deserialization.
	// If the data source fetches from a remote API that returns JSON,
	// it can return the raw JSON bytes directly without deserializing first.
	//
	// Returns nil result and nil error if the data source has nothing to contribute.
	// Non-200 responses are results, not errors; errors mean no response was obtained.
	Fetch(ctx context.Context, input *DataSourceInput) (*DataSourceResult, error)
}

// DataSourceContentType identifies the serialization format of data source results
type DataSourceContentType string

const (
	// ContentTypeJSON indicates the data is JSON-encoded
	ContentTypeJSON DataSourceContentType = "application/json"

	// ContentTypeText indicates the data is opaque text
	ContentTypeText DataSourceContentType = "text/plain"
)

// DataSourceResult contains serialized data from a data source
type DataSourceResult struct {
	// StatusCode is the status reported by the upstream (HTTP semantics).
	// Zero is treated as 200 for data sources that have no notion of status.
	StatusCode int

	// Data is the serialized data (e.g., JSON bytes)
	Data []byte

	// ContentType identifies how to deserialize the data
	ContentType DataSourceContentType
}

// OK reports whether the result represents a successful lookup
func (r *DataSourceResult) OK() bool {
	return r.StatusCode == 0 || r.StatusCode == http.StatusOK
}

// DataSourceInput contains the inputs available to a data source
// All fields are exported and JSON-serializable for easy debugging
type DataSourceInput struct {
	// UserID identifies the user whose attributes are fetched
	UserID string `json:"user_id"`

	// RequestAttributes contains information about the request
	RequestAttributes *request.RequestAttributes `json:"request_attributes,omitempty"`
}

// DataSourceRegistry is a simple registry that stores data sources by name
type DataSourceRegistry struct {
	sources map[string]DataSource
}

// NewDataSourceRegistry creates a new data source registry
func NewDataSourceRegistry() *DataSourceRegistry {
	return &DataSourceRegistry{
		sources: make(map[string]DataSource),
	}
}

// Register adds a data source to the registry
func (r *DataSourceRegistry) Register(source DataSource) {
	r.sources[source.Name()] = source
}

// Get retrieves a data source by name
// Returns nil if the data source is not found
func (r *DataSourceRegistry) Get(name string) DataSource {
	return r.sources[name]
}

// Names returns the sorted names of all registered data sources
func (r *DataSourceRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope returns a fetcher whose results live for one issuance
func (r *DataSourceRegistry) Scope() *ScopedDataSources {
	return &ScopedDataSources{
		registry: r,
		fetches:  make(map[scopedKey]*scopedFetch),
	}
}

// ScopedDataSources fetches from registered data sources at most once per
// data source and user for the lifetime of one issuance.
// Every token type issued in the same call shares the same results, errors included.
// It is safe for concurrent use.
type ScopedDataSources struct {
	registry *DataSourceRegistry

	mu      sync.Mutex
	fetches map[scopedKey]*scopedFetch
}

type scopedKey struct {
	source string
	userID string
}

type scopedFetch struct {
	once   sync.Once
	result *DataSourceResult
	err    error
}

// Fetch returns the result of fetching input from the named data source,
// performing the fetch only the first time a (source, user) pair is requested
func (s *ScopedDataSources) Fetch(ctx context.Context, name string, input *DataSourceInput) (*DataSourceResult, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataSourceNotFound, name)
	}

	source := s.registry.Get(name)
	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataSourceNotFound, name)
	}

	if input == nil {
		input = &DataSourceInput{}
	}

	key := scopedKey{source: name, userID: input.UserID}

	s.mu.Lock()
	fetch, ok := s.fetches[key]
	if !ok {
		fetch = &scopedFetch{}
		s.fetches[key] = fetch
	}
	s.mu.Unlock()

	fetch.once.Do(func() {
		fetch.result, fetch.err = source.Fetch(ctx, input)
	})

	return fetch.result, fetch.err
}

// Registry returns the underlying registry
func (s *ScopedDataSources) Registry() *DataSourceRegistry {
	return s.registry
}
