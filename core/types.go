// Package core provides the RoraOS SDK client and types.
package core

// Feature represents a capability that the API may support.
type Feature string

const (
	FeatureChat          Feature = "chat"
	FeatureChatStreaming Feature = "chat_streaming"
)

// ModelID is a string identifier for a model.
// The RoraOS backend routes display model names to whatever is available.
type ModelID string

// ModelInfo describes a model exposed by the API catalog.
type ModelInfo struct {
	ID          ModelID `json:"id"`
	DisplayName string  `json:"name"`
	Vendor      string  `json:"provider,omitempty"`
}

// Role represents a message participant role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
// Messages are immutable once appended to a Store; their order is the
// conversation order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest represents a request to the chat endpoint.
// Model may be empty when talking to an agent endpoint, which carries its
// own model configuration.
type ChatRequest struct {
	Model       ModelID   `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// ChatResponse represents a response from the chat endpoint.
// When the backend returns multiple choices, only the first is used.
type ChatResponse struct {
	ID     string     `json:"id,omitempty"`
	Model  ModelID    `json:"model"`
	Output string     `json:"output"`
	Usage  TokenUsage `json:"usage"`
}

// ChatChunk represents an incremental streaming fragment.
// Delta contains incremental assistant text.
type ChatChunk struct {
	Delta string `json:"delta"`
}
