package roraos

import "github.com/roraos/roraos-go/core"

// mapMessages converts core messages to the wire format.
func mapMessages(msgs []core.Message) []chatMessage {
	result := make([]chatMessage, len(msgs))
	for i, msg := range msgs {
		result[i] = chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return result
}

// buildRequest creates a wire request from a core ChatRequest. For the
// agent endpoint the model stays empty; the agent carries its own
// configuration and temperature/max_tokens act as optional overrides.
func buildRequest(req *core.ChatRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Messages: mapMessages(req.Messages),
		Model:    string(req.Model),
		Stream:   stream,
	}

	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = req.MaxTokens
	}

	return out
}

// mapResponse converts a wire response to a core ChatResponse, using the
// first choice.
func mapResponse(resp *chatResponse) *core.ChatResponse {
	result := &core.ChatResponse{
		ID:    resp.ID,
		Model: core.ModelID(resp.Model),
	}

	if resp.Usage != nil {
		result.Usage = core.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		result.Output = resp.Choices[0].Message.Content
	}

	return result
}
