package core

import (
	"context"
	"time"
)

// Transcript is the serializable projection of a conversation: system
// prompt, accumulated summary, and the live message sequence. It carries
// no identity so a transcript can be imported under any key.
type Transcript struct {
	ExportedAt   time.Time `json:"exported_at"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Messages     []Message `json:"messages"`
}

// ExportTranscript projects the identity's conversation into a Transcript.
func ExportTranscript(ctx context.Context, store Store, identity, systemPrompt string) (*Transcript, error) {
	msgs, err := store.Messages(ctx, identity)
	if err != nil {
		return nil, err
	}
	summary, err := store.Summary(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		ExportedAt:   time.Now().UTC(),
		SystemPrompt: systemPrompt,
		Summary:      summary,
		Messages:     msgs,
	}, nil
}

// ImportTranscript replaces the identity's conversation with the
// transcript's messages and summary.
func ImportTranscript(ctx context.Context, store Store, identity string, t *Transcript) error {
	if err := store.Clear(ctx, identity); err != nil {
		return err
	}
	if err := store.SetMessages(ctx, identity, t.Messages); err != nil {
		return err
	}
	if t.Summary != "" {
		return store.AppendSummary(ctx, identity, t.Summary)
	}
	return nil
}
