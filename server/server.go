// Package server exposes the chat core as an HTTP proxy API: JSON chat
// completion, SSE streaming, model catalog, and a few convenience
// endpoints layered on top of the core client.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roraos/roraos-go/core"
)

// ClientFactory builds a client for a per-request API key override.
type ClientFactory func(apiKey string) *core.Client

// Server proxies HTTP requests to the RoraOS API through a core.Client.
type Server struct {
	log       *slog.Logger
	client    *core.Client
	clientFor ClientFactory
	model     core.ModelID
}

// Config holds server dependencies.
type Config struct {
	// Logger receives access and error logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Client is the default upstream client.
	Client *core.Client

	// ClientFactory, when set, builds a client for requests carrying an
	// X-API-Key header. Requests without the header use Client.
	ClientFactory ClientFactory

	// DefaultModel is used by the summarize and translate endpoints.
	// Defaults to "gpt-4o".
	DefaultModel core.ModelID
}

// New creates a Server.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	return &Server{
		log:       log,
		client:    cfg.Client,
		clientFor: cfg.ClientFactory,
		model:     model,
	}
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Get("/health", s.handleHealth)
	mux.Get("/models", s.handleModels)
	mux.Post("/chat", s.handleChat)
	mux.Post("/chat/stream", s.handleChatStream)
	mux.Post("/summarize", s.handleSummarize)
	mux.Post("/translate", s.handleTranslate)

	var handler http.Handler = mux
	handler = Recoverer(s.log)(handler)
	handler = AccessLog(s.log)(handler)
	handler = RequestID()(handler)
	return handler
}

// clientFrom selects the upstream client for a request, honoring the
// X-API-Key override when a factory is configured.
func (s *Server) clientFrom(r *http.Request) *core.Client {
	if key := r.Header.Get("X-API-Key"); key != "" && s.clientFor != nil {
		return s.clientFor(key)
	}
	return s.client
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Streaming responses can stay open for a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
