package roraos

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/roraos/roraos-go/core"
)

const (
	// chatPath is the regular chat completion endpoint.
	chatPath = "/chat"
	// agentChatPath is the agent chat endpoint; agents carry their own
	// system prompt and model configuration.
	agentChatPath = "/agents/chat"
)

// doChat performs a non-streaming chat completion request.
func (p *RoraOS) doChat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	body, err := json.Marshal(buildRequest(req, false))
	if err != nil {
		return nil, newDecodeError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, newNetworkError(err)
	}

	for key, values := range p.buildHeaders() {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := p.config.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(err)
	}

	requestID := resp.Header.Get("x-request-id")

	if resp.StatusCode != http.StatusOK {
		return nil, normalizeError(resp.StatusCode, respBody, requestID)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, newDecodeError(err)
	}

	out := mapResponse(&parsed)
	if out.Model == "" {
		out.Model = req.Model
	}
	return out, nil
}
