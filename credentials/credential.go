// Package credentials provides credential management for inference provider
// authentication: opaque API keys applied as bearer headers or query
// parameters, a persisted local store, and a resolution chain.
package credentials

import (
	"context"
	"net/http"
)

// Credential applies authentication to HTTP requests.
// Implementations handle bearer headers and query-parameter keys.
type Credential interface {
	// Apply adds authentication to the HTTP request. It may modify headers
	// or query parameters.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential type identifier (e.g. "api_key", "none").
	Type() string
}

// APIKeyCredential implements API key authentication, either as a request
// header (optionally prefixed, e.g. "Bearer ") or as a query parameter.
type APIKeyCredential struct {
	apiKey     string
	headerName string
	prefix     string
	queryParam string
}

// APIKeyOption configures an APIKeyCredential.
type APIKeyOption func(*APIKeyCredential)

// WithHeaderName sets the header name for the API key.
func WithHeaderName(name string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.headerName = name
	}
}

// WithPrefix sets the prefix prepended to the key in the header.
func WithPrefix(prefix string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.prefix = prefix
	}
}

// WithQueryParam sends the key as a URL query parameter instead of a header.
func WithQueryParam(name string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.queryParam = name
		c.headerName = ""
	}
}

// NewAPIKeyCredential creates a new API key credential.
// By default it uses the "Authorization" header with a "Bearer " prefix.
func NewAPIKeyCredential(apiKey string, opts ...APIKeyOption) *APIKeyCredential {
	c := &APIKeyCredential{
		apiKey:     apiKey,
		headerName: "Authorization",
		prefix:     "Bearer ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply adds the API key to the request.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	if c.apiKey == "" {
		return nil
	}
	if c.queryParam != "" {
		q := req.URL.Query()
		q.Set(c.queryParam, c.apiKey)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(c.headerName, c.prefix+c.apiKey)
	return nil
}

// Type returns "api_key".
func (c *APIKeyCredential) Type() string {
	return "api_key"
}

// APIKey returns the raw API key value. Useful for providers that embed the
// key in the request URL at build time.
func (c *APIKeyCredential) APIKey() string {
	return c.apiKey
}

// NoOpCredential is a credential that does nothing. Used for providers that
// do not require authentication (e.g. the mock provider).
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// Type returns "none".
func (c *NoOpCredential) Type() string {
	return "none"
}
