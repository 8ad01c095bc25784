package roraos

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/roraos/roraos-go/core"
)

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// doStreamChat performs a streaming chat completion request. A non-200
// status fails immediately, before any fragment is yielded.
func (p *RoraOS) doStreamChat(ctx context.Context, req *core.ChatRequest) (*core.ChatStream, error) {
	body, err := json.Marshal(buildRequest(req, true))
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

	requestID := resp.Header.Get("x-request-id")

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, normalizeError(resp.StatusCode, respBody, requestID)
	}

	chunkCh := make(chan core.ChatChunk, 100)
	errCh := make(chan error, 1)
	finalCh := make(chan *core.ChatResponse, 1)

	go p.processSSEStream(ctx, resp.Body, req.Model, chunkCh, errCh, finalCh)

	return &core.ChatStream{
		Ch:    chunkCh,
		Err:   errCh,
		Final: finalCh,
	}, nil
}

// processSSEStream reads the event stream and emits fragments. Malformed
// chunks are skipped silently so a partial read never kills the stream;
// closing the body on return releases the connection on cancellation.
func (p *RoraOS) processSSEStream(
	ctx context.Context,
	body io.ReadCloser,
	model core.ModelID,
	chunkCh chan<- core.ChatChunk,
	errCh chan<- error,
	finalCh chan<- *core.ChatResponse,
) {
	defer body.Close()
	defer close(chunkCh)
	defer close(errCh)
	defer close(finalCh)

	reader := bufio.NewReader(body)

	var responseID string
	responseModel := model
	var usage *chatUsage

	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			errCh <- newNetworkError(err)
			return
		}

		line = strings.TrimSpace(line)

		// Skip blank lines and SSE comments.
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == doneSentinel {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed chunk: not fatal, protects against partial reads.
			continue
		}

		if chunk.ID != "" {
			responseID = chunk.ID
		}
		if chunk.Model != "" {
			responseModel = core.ModelID(chunk.Model)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		if text := chunk.text(); text != "" {
			select {
			case chunkCh <- core.ChatChunk{Delta: text}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}

	finalResp := &core.ChatResponse{
		ID:    responseID,
		Model: responseModel,
	}
	if usage != nil {
		finalResp.Usage = core.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}

	finalCh <- finalResp
}
