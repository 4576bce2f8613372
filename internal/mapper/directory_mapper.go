package mapper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/service"
)

// ValueFormat selects how a directory payload is written into the claim
type ValueFormat string

const (
	// ValueFormatObject writes the payload as a JSON object
	ValueFormatObject ValueFormat = "object"

	// ValueFormatString writes the payload lines concatenated into one string
	ValueFormatString ValueFormat = "string"
)

const (
	// NoDataSentinel is written in string format when the directory does not answer 200
	NoDataSentinel = "no data"

	// DefaultUserIDHeader is the request header carrying the user identifier
	DefaultUserIDHeader = "userId"

	// DefaultDataSource is the data source fetched when none is configured
	DefaultDataSource = "directory"
)

var errPayloadNotObject = errors.New("payload is not a JSON object")

// ParseValueFormat parses a value format name. Empty means object.
func ParseValueFormat(s string) (ValueFormat, error) {
	switch f := ValueFormat(s); f {
	case "":
		return ValueFormatObject, nil
	case ValueFormatObject, ValueFormatString:
		return f, nil
	default:
		return "", fmt.Errorf("unknown claim value format %q (want %q or %q)", s, ValueFormatObject, ValueFormatString)
	}
}

// DirectoryClaimMapperConfig configures a DirectoryClaimMapper
type DirectoryClaimMapperConfig struct {
	// ClaimName is the claim the payload is written to.
	// Unescaped dots nest the value; "\." is a literal dot.
	ClaimName string

	// DataSource names the data source to fetch from (default "directory")
	DataSource string

	// ValueFormat selects object or string output (default object)
	ValueFormat ValueFormat

	// UserIDHeader is the request header carrying the user id (default "userId")
	UserIDHeader string

	// AllowedAttributes, if set, keeps only these top-level keys (object format)
	AllowedAttributes []string

	// DeniedAttributes drops these top-level keys (object format)
	DeniedAttributes []string

	// Observer receives enrichment events. Defaults to a no-op observer.
	Observer service.ClaimEnrichmentObserver
}

// DirectoryClaimMapper writes a user's directory record into one claim.
//
// The user id is the first value of the configured request header. The record
// is fetched through the issuance-scoped data sources, so issuing several token
// types in one call fetches it once. Enrichment is best effort: failures are
// reported to the observer and the token is issued without the claim.
type DirectoryClaimMapper struct {
	claimName  string
	dataSource string
	format     ValueFormat
	header     string
	filter     claims.ClaimsFilter
	observer   service.ClaimEnrichmentObserver
}

// NewDirectoryClaimMapper creates a directory claim mapper
func NewDirectoryClaimMapper(cfg DirectoryClaimMapperConfig) (*DirectoryClaimMapper, error) {
	if cfg.ClaimName == "" {
		return nil, fmt.Errorf("claim name is required")
	}
	if len(claims.SplitPath(cfg.ClaimName)) == 0 {
		return nil, fmt.Errorf("invalid claim name %q", cfg.ClaimName)
	}

	format, err := ParseValueFormat(string(cfg.ValueFormat))
	if err != nil {
		return nil, err
	}

	if cfg.DataSource == "" {
		cfg.DataSource = DefaultDataSource
	}
	if cfg.UserIDHeader == "" {
		cfg.UserIDHeader = DefaultUserIDHeader
	}
	if cfg.Observer == nil {
		cfg.Observer = service.NoOpClaimEnrichmentObserver()
	}

	return &DirectoryClaimMapper{
		claimName:  cfg.ClaimName,
		dataSource: cfg.DataSource,
		format:     format,
		header:     cfg.UserIDHeader,
		filter:     claims.NewAttributeFilter(cfg.AllowedAttributes, cfg.DeniedAttributes),
		observer:   cfg.Observer,
	}, nil
}

// ClaimName returns the claim this mapper writes
func (m *DirectoryClaimMapper) ClaimName() string {
	return m.claimName
}

// ValueFormat returns the configured value format
func (m *DirectoryClaimMapper) ValueFormat() ValueFormat {
	return m.format
}

// Map fetches the user's record and returns it as a single claim.
// It never returns an error; a nil result means no claim is written.
func (m *DirectoryClaimMapper) Map(ctx context.Context, input *service.MapperInput) (claims.Claims, error) {
	if input == nil {
		return nil, nil
	}

	ctx, probe := m.observer.ClaimEnrichmentStarted(ctx, m.claimName, m.dataSource, input.TokenType)
	defer probe.End()

	userID, ok := input.RequestAttributes.FirstHeader(m.header)
	if !ok || userID == "" {
		probe.UserIDMissing(m.header)
		return nil, nil
	}

	result, err := input.DataSources.Fetch(ctx, m.dataSource, &service.DataSourceInput{
		UserID:            userID,
		RequestAttributes: input.RequestAttributes,
	})
	if err != nil {
		probe.DataFetchFailed(userID, err)
		return nil, nil
	}
	if result == nil {
		probe.ClaimSkipped(m.claimName, "data source returned no result")
		return nil, nil
	}

	probe.DataFetched(userID, result)

	if !result.OK() {
		if m.format == ValueFormatString {
			probe.SentinelWritten(m.claimName, result.StatusCode)
			return m.claim(NoDataSentinel), nil
		}
		probe.ClaimSkipped(m.claimName, fmt.Sprintf("directory returned status %d", result.StatusCode))
		return nil, nil
	}

	var value any
	switch m.format {
	case ValueFormatString:
		value = claims.JoinLines(string(result.Data))
	default:
		attributes, err := decodeObject(result.Data)
		if err != nil {
			probe.PayloadInvalid(err)
			return nil, nil
		}
		for _, key := range slices.Sorted(maps.Keys(attributes)) {
			probe.AttributeFetched(key, attributes[key])
		}
		value = map[string]any(m.filter.Filter(attributes))
	}

	probe.ClaimWritten(m.claimName)
	return m.claim(value), nil
}

func (m *DirectoryClaimMapper) claim(value any) claims.Claims {
	out := make(claims.Claims, 1)
	out.SetPath(m.claimName, value)
	return out
}

// decodeObject decodes a JSON object. Any other JSON value is rejected.
// Numbers are kept as json.Number so large integers survive unchanged.
func decodeObject(data []byte) (claims.Claims, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var attributes map[string]any
	if err := dec.Decode(&attributes); err != nil {
		return nil, fmt.Errorf("%w: %w", errPayloadNotObject, err)
	}
	if attributes == nil {
		return nil, errPayloadNotObject
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", errPayloadNotObject)
	}
	return claims.Claims(attributes), nil
}
