package roraos

// chatRequest represents a request to the RoraOS chat endpoint. The wire
// format is OpenAI-compatible.
type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Stream      bool          `json:"stream"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// chatMessage represents a message in the wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents a non-streaming response.
type chatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// chatChoice represents a single choice in a response.
type chatChoice struct {
	Index   int          `json:"index"`
	Message *respMessage `json:"message,omitempty"`
}

// respMessage represents the assistant message in a response.
type respMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatUsage represents token usage in a response.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// streamChunk represents a single decoded SSE event payload. The backend
// emits either a flat content field or the nested OpenAI delta shape.
type streamChunk struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Content string         `json:"content,omitempty"`
	Choices []streamChoice `json:"choices,omitempty"`
	Usage   *chatUsage     `json:"usage,omitempty"`
}

// streamChoice represents a single choice in a streaming chunk.
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// streamDelta represents the delta content in a streaming chunk.
type streamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// text extracts the fragment text from a chunk, preferring the flat field.
func (c *streamChunk) text() string {
	if c.Content != "" {
		return c.Content
	}
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}
