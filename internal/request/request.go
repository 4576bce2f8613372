// Package request provides common request-related types used across the userclaims system.
//
// This package contains types that represent the HTTP/RPC request that triggered
// token issuance. Claim mappers read the user identifier from it.
package request

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"
)

// RequestAttributes contains attributes about the incoming request
// All fields are exported and JSON-serializable
type RequestAttributes struct {
	// Method is the HTTP method or RPC method name
	Method string `json:"method,omitempty"`

	// Path is the request path/resource being accessed
	Path string `json:"path,omitempty"`

	// IPAddress is the client IP address
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client user agent
	UserAgent string `json:"user_agent,omitempty"`

	// Headers contains the request headers.
	// Keys are canonical MIME header keys; use Header/FirstHeader for lookups.
	Headers map[string][]string `json:"headers,omitempty"`

	// Additional arbitrary context
	// This can include:
	// - "host": The HTTP host header
	// - "context_extensions": Envoy's context extensions (map[string]string)
	// Note: No omitempty tag to ensure this field is always present in JSON,
	// even when empty, for CEL expressions to work correctly
	Additional map[string]any `json:"additional"`
}

// Header returns all values of the named header.
// Lookup is case-insensitive.
func (r *RequestAttributes) Header(name string) []string {
	if r == nil || r.Headers == nil {
		return nil
	}
	if values, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]; ok {
		return values
	}
	// Headers built by hand may not be canonical
	for key, values := range r.Headers {
		if strings.EqualFold(key, name) {
			return values
		}
	}
	return nil
}

// FirstHeader returns the first value of the named header and whether
// the header was present with at least one value
func (r *RequestAttributes) FirstHeader(name string) (string, bool) {
	values := r.Header(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// SetHeader appends a header value, canonicalizing the key
func (r *RequestAttributes) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string][]string)
	}
	key := textproto.CanonicalMIMEHeaderKey(name)
	r.Headers[key] = append(r.Headers[key], value)
}

// FlatHeaders returns the headers with multiple values joined by ", ".
// Used where consumers expect a single string per header (CEL, Lua).
func (r *RequestAttributes) FlatHeaders() map[string]string {
	if r == nil {
		return nil
	}
	flat := make(map[string]string, len(r.Headers))
	for key, values := range r.Headers {
		flat[key] = strings.Join(values, ", ")
	}
	return flat
}

// FromHTTPRequest builds RequestAttributes from an inbound HTTP request
func FromHTTPRequest(r *http.Request) *RequestAttributes {
	attrs := &RequestAttributes{
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		Headers:    make(map[string][]string, len(r.Header)),
		Additional: make(map[string]any),
	}

	for key, values := range r.Header {
		attrs.Headers[textproto.CanonicalMIMEHeaderKey(key)] = append([]string(nil), values...)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		attrs.IPAddress = host
	} else {
		attrs.IPAddress = r.RemoteAddr
	}

	if r.Host != "" {
		attrs.Additional["host"] = r.Host
	}

	return attrs
}
