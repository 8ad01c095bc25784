package core

import (
	"context"
	"strings"
)

// summarizeInstruction is the fixed system prompt for summarization calls.
const summarizeInstruction = "Summarize this conversation briefly in 2-3 sentences. Focus on key topics and decisions."

const (
	// DefaultSummarizeThreshold is the live message count at which a
	// conversation prefix gets summarized.
	DefaultSummarizeThreshold = 15
	// DefaultKeepTail is the number of recent messages retained verbatim
	// after summarization.
	DefaultKeepTail = 5

	summarizeTemperature = 0.3
	summarizeMaxTokens   = 200
)

// SummarizeConfig controls prefix summarization. The threshold is
// independent of the store's trim bound and should sit below it, so that
// old turns are collapsed into a summary instead of silently dropped.
type SummarizeConfig struct {
	Enabled   bool
	Threshold int // live message count that triggers summarization
	KeepTail  int // newest messages kept verbatim
}

func (cfg SummarizeConfig) withDefaults() SummarizeConfig {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSummarizeThreshold
	}
	if cfg.KeepTail <= 0 {
		cfg.KeepTail = DefaultKeepTail
	}
	return cfg
}

// maybeSummarize collapses the oldest prefix into the accumulated summary
// once the live sequence reaches the threshold. Any failure leaves the
// sequence untouched; summarization is never surfaced to the caller.
func (c *Conversation) maybeSummarize(ctx context.Context) {
	n, err := c.store.Len(ctx, c.identity)
	if err != nil || n < c.summarize.Threshold {
		return
	}

	msgs, err := c.store.Messages(ctx, c.identity)
	if err != nil || len(msgs) <= c.summarize.KeepTail {
		return
	}

	prefix := msgs[:len(msgs)-c.summarize.KeepTail]
	summary, err := c.summarizePrefix(ctx, prefix)
	if err != nil || summary == "" {
		return
	}

	if err := c.store.AppendSummary(ctx, c.identity, summary); err != nil {
		return
	}
	_, _ = c.store.DropOldest(ctx, c.identity, c.summarize.KeepTail)
}

// summarizePrefix renders the prefix as "role: content" lines and issues
// one blocking low-temperature call.
func (c *Conversation) summarizePrefix(ctx context.Context, prefix []Message) (string, error) {
	var lines []string
	for _, m := range prefix {
		lines = append(lines, string(m.Role)+": "+m.Content)
	}

	resp, err := c.client.Chat(c.model).
		System(summarizeInstruction).
		User(strings.Join(lines, "\n")).
		Temperature(summarizeTemperature).
		MaxTokens(summarizeMaxTokens).
		GetResponse(ctx)
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}
