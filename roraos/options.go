// Package roraos provides the RoraOS chat API provider implementation.
package roraos

import (
	"net/http"
	"time"

	"github.com/roraos/roraos-go/core"
)

// DefaultBaseURL is the default base URL for the RoraOS API.
const DefaultBaseURL = "https://labs.roraos.com/api/v1"

// DefaultTimeout bounds every HTTP exchange; exceeding it surfaces as a
// network error, never a hang.
const DefaultTimeout = 120 * time.Second

// Config holds the configuration for the RoraOS provider.
type Config struct {
	// APIKey is the bearer token for authentication. For the agent
	// endpoint this is the agent-specific key.
	APIKey core.Secret

	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient is the HTTP client used for requests. Created lazily with
	// DefaultTimeout when nil.
	HTTPClient *http.Client

	// Headers are additional headers to include in requests.
	Headers http.Header

	// Agent selects the agent chat endpoint, where the model and system
	// prompt are configured server-side and the model field is optional.
	Agent bool
}

// Option is a functional option for configuring the RoraOS provider.
type Option func(*Config)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithHeaders sets additional headers to include in requests.
func WithHeaders(headers http.Header) Option {
	return func(c *Config) {
		c.Headers = headers
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HTTPClient = &http.Client{Timeout: timeout}
	}
}

// WithAgentEndpoint targets the agent chat endpoint instead of the regular
// chat endpoint.
func WithAgentEndpoint() Option {
	return func(c *Config) {
		c.Agent = true
	}
}
