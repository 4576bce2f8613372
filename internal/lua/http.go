package lua

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultUserAgent is sent when a script does not set User-Agent itself
const DefaultUserAgent = "Mozilla/5.0"

// RequestOptions is a function that can modify a request before it is sent
// This can be used to add authentication headers, modify URLs, etc.
type RequestOptions func(*http.Request) error

// HTTPService provides HTTP client functionality to Lua scripts
type HTTPService struct {
	client         *http.Client
	userAgent      string
	requestOptions RequestOptions
	ctx            context.Context
}

// HTTPServiceConfig configures the HTTP service
type HTTPServiceConfig struct {
	// Timeout for HTTP requests (default: 30s)
	Timeout time.Duration

	// UserAgent is the default User-Agent header (default: Mozilla/5.0)
	UserAgent string

	// RequestOptions function to process requests before sending
	// Can be used to add authentication, modify headers, etc.
	RequestOptions RequestOptions

	// Transport is the HTTP transport to use for requests
	// If nil, uses http.DefaultTransport
	Transport http.RoundTripper
}

// NewHTTPService creates a new HTTP service with configurable timeout
func NewHTTPService(timeout time.Duration) *HTTPService {
	return NewHTTPServiceWithConfig(HTTPServiceConfig{
		Timeout: timeout,
	})
}

// NewHTTPServiceWithConfig creates a new HTTP service with full configuration
func NewHTTPServiceWithConfig(config HTTPServiceConfig) *HTTPService {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &HTTPService{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		userAgent:      config.UserAgent,
		requestOptions: config.RequestOptions,
		ctx:            context.Background(),
	}
}

// WithContext returns a copy of the service whose requests are bound to ctx,
// so cancelling the issuance cancels in-flight script requests
func (s *HTTPService) WithContext(ctx context.Context) *HTTPService {
	copied := *s
	copied.ctx = ctx
	return &copied
}

// Register adds the HTTP service to the Lua state
// Usage in Lua:
//
//	local response = http.get("http://service:8087/user/42")
//	local response = http.post("https://api.example.com/data", "request body", {["Content-Type"] = "application/json"})
//	local response = http.request("PUT", "https://api.example.com/data", "body", {})
func (s *HTTPService) Register(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "get", L.NewFunction(s.luaHTTPGet))
	L.SetField(mod, "post", L.NewFunction(s.luaHTTPPost))
	L.SetField(mod, "request", L.NewFunction(s.luaHTTPRequest))

	L.SetGlobal("http", mod)
}

// luaHTTPGet implements HTTP GET
// Args: url (string), [headers (table)]
// Returns: response table {status=int, body=string, headers=table} or (nil, error)
func (s *HTTPService) luaHTTPGet(L *lua.LState) int {
	url := L.CheckString(1)
	return s.do(L, http.MethodGet, url, nil, s.parseHeaders(L, 2))
}

// luaHTTPPost implements HTTP POST
// Args: url (string), body (string), [headers (table)]
// Returns: response table {status=int, body=string, headers=table} or (nil, error)
func (s *HTTPService) luaHTTPPost(L *lua.LState) int {
	url := L.CheckString(1)
	body := L.CheckString(2)
	return s.do(L, http.MethodPost, url, bytes.NewBufferString(body), s.parseHeaders(L, 3))
}

// luaHTTPRequest implements a generic HTTP request
// Args: method (string), url (string), [body (string)], [headers (table)]
// Returns: response table {status=int, body=string, headers=table} or (nil, error)
func (s *HTTPService) luaHTTPRequest(L *lua.LState) int {
	method := L.CheckString(1)
	url := L.CheckString(2)

	var body io.Reader
	if bodyStr := L.OptString(3, ""); bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	return s.do(L, method, url, body, s.parseHeaders(L, 4))
}

// do sends a request and pushes either the response table or (nil, error)
func (s *HTTPService) do(L *lua.LState, method, url string, body io.Reader, headers map[string]string) int {
	req, err := http.NewRequestWithContext(s.ctx, method, url, body)
	if err != nil {
		return pushError(L, "failed to create request: %v", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if s.requestOptions != nil {
		if err := s.requestOptions(req); err != nil {
			return pushError(L, "request options failed: %v", err)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return pushError(L, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	L.Push(s.responseToLua(L, resp))
	return 1
}

func pushError(L *lua.LState, format string, args ...any) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(fmt.Sprintf(format, args...)))
	return 2
}

// parseHeaders converts a Lua table to Go map of headers
func (s *HTTPService) parseHeaders(L *lua.LState, arg int) map[string]string {
	headers := make(map[string]string)

	if L.GetTop() < arg {
		return headers
	}

	tbl, ok := L.Get(arg).(*lua.LTable)
	if !ok {
		return headers
	}

	tbl.ForEach(func(key, value lua.LValue) {
		if key.Type() == lua.LTString && value.Type() == lua.LTString {
			headers[key.String()] = value.String()
		}
	})

	return headers
}

// responseToLua converts an HTTP response to a Lua table
func (s *HTTPService) responseToLua(L *lua.LState, resp *http.Response) *lua.LTable {
	tbl := L.NewTable()

	L.SetField(tbl, "status", lua.LNumber(resp.StatusCode))

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		L.SetField(tbl, "body", lua.LString(""))
		L.SetField(tbl, "error", lua.LString(fmt.Sprintf("failed to read body: %v", err)))
	} else {
		L.SetField(tbl, "body", lua.LString(string(bodyBytes)))
	}

	headersTbl := L.NewTable()
	for key, values := range resp.Header {
		if len(values) > 0 {
			L.SetField(headersTbl, key, lua.LString(values[0]))
		}
	}
	L.SetField(tbl, "headers", headersTbl)

	return tbl
}
