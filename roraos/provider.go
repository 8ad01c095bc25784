package roraos

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/roraos/roraos-go/core"
)

// DefaultAPIKeyEnvVar is the environment variable name for the API key.
const DefaultAPIKeyEnvVar = "RORAOS_API_KEY"

// ErrAPIKeyNotFound is returned when the API key environment variable is not set.
var ErrAPIKeyNotFound = errors.New("roraos: RORAOS_API_KEY environment variable not set")

// NewFromEnv creates a new RoraOS provider using the RORAOS_API_KEY
// environment variable:
//
//	provider, err := roraos.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := core.NewClient(provider)
func NewFromEnv(opts ...Option) (*RoraOS, error) {
	apiKey := os.Getenv(DefaultAPIKeyEnvVar)
	if apiKey == "" {
		return nil, ErrAPIKeyNotFound
	}
	return New(apiKey, opts...), nil
}

// RoraOS is the provider implementation for the RoraOS chat API.
// RoraOS is safe for concurrent use.
type RoraOS struct {
	config Config
}

// New creates a new RoraOS provider with the given API key and options.
func New(apiKey string, opts ...Option) *RoraOS {
	cfg := Config{
		APIKey:  core.NewSecret(apiKey),
		BaseURL: DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &RoraOS{config: cfg}
}

// ID returns the provider identifier.
func (p *RoraOS) ID() string {
	return "roraos"
}

// Models returns the display catalog. The backend routes display names to
// whatever model is actually available.
func (p *RoraOS) Models() []core.ModelInfo {
	result := make([]core.ModelInfo, len(models))
	copy(result, models)
	return result
}

// models is the display catalog exposed by the API.
var models = []core.ModelInfo{
	{ID: "gpt-4o", DisplayName: "GPT-4o", Vendor: "OpenAI"},
	{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", Vendor: "OpenAI"},
	{ID: "claude-3.5-sonnet", DisplayName: "Claude 3.5 Sonnet", Vendor: "Anthropic"},
	{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Vendor: "Google"},
}

// Supports reports whether the provider supports the given feature.
func (p *RoraOS) Supports(feature core.Feature) bool {
	switch feature {
	case core.FeatureChat, core.FeatureChatStreaming:
		return true
	default:
		return false
	}
}

// chatURL returns the endpoint URL for this provider's mode.
func (p *RoraOS) chatURL() string {
	if p.config.Agent {
		return p.config.BaseURL + agentChatPath
	}
	return p.config.BaseURL + chatPath
}

// buildHeaders constructs the HTTP headers for an API request.
func (p *RoraOS) buildHeaders() http.Header {
	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+p.config.APIKey.Expose())
	headers.Set("Content-Type", "application/json")

	for key, values := range p.config.Headers {
		for _, v := range values {
			headers.Add(key, v)
		}
	}

	return headers
}

// Chat sends a non-streaming chat request.
func (p *RoraOS) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	return p.doChat(ctx, req)
}

// StreamChat sends a streaming chat request.
func (p *RoraOS) StreamChat(ctx context.Context, req *core.ChatRequest) (*core.ChatStream, error) {
	return p.doStreamChat(ctx, req)
}

// Compile-time check that RoraOS implements Provider.
var _ core.Provider = (*RoraOS)(nil)
