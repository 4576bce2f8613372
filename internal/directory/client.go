// Package directory is a client for the user directory service.
//
// The directory exposes one resource, GET /user/{id}, which returns the
// attributes of a user. The client reports every completed HTTP exchange,
// whatever its status, and leaves interpretation of the body to callers.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the address the directory service is deployed at
	DefaultBaseURL = "http://service:8087"

	// DefaultUserAgent is sent with every directory request
	DefaultUserAgent = "Mozilla/5.0"

	// DefaultTimeout bounds a single directory request
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrMalformedURL is returned when a request URL cannot be built for a user id
	ErrMalformedURL = errors.New("malformed directory URL")

	// ErrUnavailable is returned when the directory cannot be reached or
	// the response cannot be read
	ErrUnavailable = errors.New("directory unavailable")
)

// Config configures a directory client
type Config struct {
	// BaseURL is the scheme, host and optional path prefix of the directory service
	// (default: http://service:8087)
	BaseURL string

	// UserAgent is the User-Agent header value (default: Mozilla/5.0)
	UserAgent string

	// Timeout for a single request (default: 30s)
	Timeout time.Duration

	// Transport is the HTTP transport to use for requests
	// If nil, uses http.DefaultTransport
	Transport http.RoundTripper
}

// Response is a completed directory exchange
type Response struct {
	// StatusCode is the HTTP status returned by the directory
	StatusCode int

	// ContentType is the response Content-Type header, if any
	ContentType string

	// Body is the full response body
	Body []byte

	// URL is the URL that was requested
	URL string
}

// OK reports whether the directory returned 200
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client fetches user records from the directory service
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewClient creates a directory client, applying defaults for unset fields
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		userAgent: config.UserAgent,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// BaseURL returns the configured base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UserURL returns the URL of the user resource for userID
func (c *Client) UserURL(userID string) (string, error) {
	raw := c.baseURL + "/user/" + url.PathEscape(userID)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrMalformedURL, raw)
	}
	return u.String(), nil
}

// GetUser fetches the user record for userID.
// Any completed exchange is returned as a Response, including non-200 statuses.
func (c *Client) GetUser(ctx context.Context, userID string) (*Response, error) {
	target, err := c.UserURL(userID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUnavailable, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %w", ErrUnavailable, target, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		URL:         target,
	}, nil
}
