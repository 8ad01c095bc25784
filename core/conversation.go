package core

import (
	"context"
	"strings"
)

// DefaultSystemPrompt is used when a conversation has no explicit prompt.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// Conversation provides a high-level API for multi-turn conversations with
// automatic history management: append, summarize, trim, call, commit.
// One Conversation binds a client to a single identity in a Store; the
// Store may be shared across many conversations.
type Conversation struct {
	client   *Client
	store    Store
	identity string
	model    ModelID
	system   string

	temperature *float32
	maxTokens   *int

	summarize SummarizeConfig
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithSystemPrompt sets the system prompt for the conversation.
func WithSystemPrompt(system string) ConversationOption {
	return func(c *Conversation) {
		c.system = system
	}
}

// WithStore sets a custom store for the conversation.
func WithStore(store Store) ConversationOption {
	return func(c *Conversation) {
		if store != nil {
			c.store = store
		}
	}
}

// WithTemperature sets the sampling temperature for every turn.
func WithTemperature(v float32) ConversationOption {
	return func(c *Conversation) {
		c.temperature = &v
	}
}

// WithMaxTokens caps the response length for every turn.
func WithMaxTokens(n int) ConversationOption {
	return func(c *Conversation) {
		c.maxTokens = &n
	}
}

// WithSummarization enables prefix summarization for long conversations.
func WithSummarization(cfg SummarizeConfig) ConversationOption {
	return func(c *Conversation) {
		c.summarize = cfg.withDefaults()
		c.summarize.Enabled = true
	}
}

// NewConversation creates a conversation session for the given identity.
func NewConversation(client *Client, identity string, model ModelID, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		client:   client,
		store:    NewMemoryStore(DefaultMaxMessages),
		identity: identity,
		model:    model,
		system:   DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the conversation's identity key.
func (c *Conversation) Identity() string {
	return c.identity
}

// prepare records the user turn and returns the request view.
func (c *Conversation) prepare(ctx context.Context, text string) ([]Message, error) {
	if err := c.store.Append(ctx, c.identity, Message{Role: RoleUser, Content: text}); err != nil {
		return nil, err
	}

	if c.summarize.Enabled {
		// Failure here is non-fatal: the sequence stays unsummarized and
		// the next turn re-checks the threshold.
		c.maybeSummarize(ctx)
	}

	if err := c.store.Trim(ctx, c.identity); err != nil {
		return nil, err
	}

	return c.store.Context(ctx, c.identity, c.system)
}

// builder assembles a ChatBuilder for the given view.
func (c *Conversation) builder(view []Message) *ChatBuilder {
	b := c.client.Chat(c.model).Messages(view...)
	if c.temperature != nil {
		b = b.Temperature(*c.temperature)
	}
	if c.maxTokens != nil {
		b = b.MaxTokens(*c.maxTokens)
	}
	return b
}

// Send sends a user message and returns the assistant's reply, appending
// both turns to the store.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	view, err := c.prepare(ctx, text)
	if err != nil {
		return "", err
	}

	resp, err := c.builder(view).GetResponse(ctx)
	if err != nil {
		return "", err
	}

	if err := c.store.Append(ctx, c.identity, Message{Role: RoleAssistant, Content: resp.Output}); err != nil {
		return "", err
	}
	return resp.Output, nil
}

// Stream sends a user message and returns a fragment stream. The assistant
// turn is committed to the store only once the underlying stream completes
// without error; cancelling mid-stream leaves the store unmodified for this
// turn. A caller that stops reading the stream early must cancel ctx to
// release the underlying connection.
func (c *Conversation) Stream(ctx context.Context, text string) (*ChatStream, error) {
	view, err := c.prepare(ctx, text)
	if err != nil {
		return nil, err
	}

	stream, err := c.builder(view).Stream(ctx)
	if err != nil {
		return nil, err
	}

	// Buffered like the provider channel so short replies complete even
	// when the consumer walks away without draining.
	out := make(chan ChatChunk, 100)
	errCh := make(chan error, 1)
	finalCh := make(chan *ChatResponse, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		defer close(finalCh)

		var accumulated strings.Builder
		for chunk := range stream.Ch {
			select {
			case out <- chunk:
				accumulated.WriteString(chunk.Delta)
			case <-ctx.Done():
				return
			}
		}

		// Provider closes all channels together; Err and Final are
		// buffered, so these reads terminate.
		select {
		case err, ok := <-stream.Err:
			if ok && err != nil {
				errCh <- err
				return
			}
		case <-ctx.Done():
			return
		}

		var final *ChatResponse
		select {
		case resp, ok := <-stream.Final:
			if ok {
				final = resp
			}
		case <-ctx.Done():
			return
		}

		output := accumulated.String()
		if final != nil && final.Output != "" {
			output = final.Output
		}

		// Complete drain: commit the assistant turn.
		if err := c.store.Append(ctx, c.identity, Message{Role: RoleAssistant, Content: output}); err != nil {
			errCh <- err
			return
		}

		if final == nil {
			final = &ChatResponse{Model: c.model}
		}
		final.Output = output
		finalCh <- final
	}()

	return &ChatStream{Ch: out, Err: errCh, Final: finalCh}, nil
}

// History returns the live message sequence.
func (c *Conversation) History(ctx context.Context) ([]Message, error) {
	return c.store.Messages(ctx, c.identity)
}

// Clear resets the conversation history and summary.
func (c *Conversation) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.identity)
}

// Export projects the conversation into a Transcript document.
func (c *Conversation) Export(ctx context.Context) (*Transcript, error) {
	return ExportTranscript(ctx, c.store, c.identity, c.system)
}

// Import replaces the conversation from a Transcript document.
func (c *Conversation) Import(ctx context.Context, t *Transcript) error {
	if t.SystemPrompt != "" {
		c.system = t.SystemPrompt
	}
	return ImportTranscript(ctx, c.store, c.identity, t)
}
