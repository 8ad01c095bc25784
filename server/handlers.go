package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/roraos/roraos-go/core"
)

// chatRequest is the inbound payload for /chat and /chat/stream.
type chatRequest struct {
	Messages    []core.Message `json:"messages"`
	Model       core.ModelID   `json:"model"`
	Temperature *float32       `json:"temperature"`
	MaxTokens   *int           `json:"max_tokens"`
}

// chatResponse is the outbound payload for /chat.
type chatResponse struct {
	Content string           `json:"content"`
	Model   core.ModelID     `json:"model"`
	Usage   *core.TokenUsage `json:"usage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError translates core error taxonomy to HTTP statuses:
// validation failures are the caller's fault (400), API errors pass the
// upstream status through, timeouts map to 504 and other transport or
// server failures to 502.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNoMessages),
		errors.Is(err, core.ErrTemperatureRange),
		errors.Is(err, core.ErrMaxTokens):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timeout")
	case errors.Is(err, core.ErrNetwork):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		var pe *core.ProviderError
		if errors.As(err, &pe) && pe.Status != 0 {
			writeError(w, pe.Status, pe.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "roraos-proxy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": s.client.Provider().Models(),
	})
}

// decodeChatRequest parses and minimally validates the inbound payload.
func decodeChatRequest(r *http.Request) (*chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("invalid json")
	}
	return &req, nil
}

// buildChat assembles a core ChatBuilder from an inbound payload.
func (s *Server) buildChat(r *http.Request, req *chatRequest) *core.ChatBuilder {
	b := s.clientFrom(r).Chat(req.Model).Messages(req.Messages...)
	if req.Temperature != nil {
		b = b.Temperature(*req.Temperature)
	}
	if req.MaxTokens != nil {
		b = b.MaxTokens(*req.MaxTokens)
	}
	return b
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.buildChat(r, req).GetResponse(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: resp.Output,
		Model:   resp.Model,
		Usage:   &resp.Usage,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := s.buildChat(r, req).Stream(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := func(v any) []byte {
		data, _ := json.Marshal(v)
		return data
	}

	for chunk := range stream.Ch {
		if _, err := w.Write(append(append([]byte("data: "), enc(map[string]string{"content": chunk.Delta})...), '\n', '\n')); err != nil {
			return // client went away
		}
		flusher.Flush()
	}

	// Err is closed only once the outcome is known; block for it.
	if err := <-stream.Err; err != nil {
		_, _ = w.Write(append(append([]byte("data: "), enc(map[string]string{"error": err.Error()})...), '\n', '\n'))
		flusher.Flush()
		return
	}

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// taskRequest is the inbound payload for the convenience endpoints.
type taskRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// runTask issues a single low-temperature system+user call.
func (s *Server) runTask(w http.ResponseWriter, r *http.Request, system, text string, maxTokens int) {
	resp, err := s.clientFrom(r).Chat(s.model).
		System(system).
		User(text).
		Temperature(0.3).
		MaxTokens(maxTokens).
		GetResponse(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: resp.Output,
		Model:   resp.Model,
		Usage:   &resp.Usage,
	})
}

func decodeTaskRequest(r *http.Request) (*taskRequest, error) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("invalid json")
	}
	if req.Text == "" {
		return nil, errors.New("text is required")
	}
	return &req, nil
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runTask(w, r, "Summarize the following text concisely.", req.Text, 500)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := req.TargetLanguage
	if target == "" {
		target = "English"
	}
	system := "Translate the following text to " + target + ". Only output the translation."
	s.runTask(w, r, system, req.Text, 1000)
}
