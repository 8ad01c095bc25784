package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestConversationSendCommitsBothTurns(t *testing.T) {
	ctx := context.Background()
	conv := NewConversation(NewClient(okProvider("hi there")), "u", "test-model")

	reply, err := conv.Send(ctx, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q, want %q", reply, "hi there")
	}

	history, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "hello" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != RoleAssistant || history[1].Content != "hi there" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestConversationSendIncludesSystemPromptInRequest(t *testing.T) {
	provider := okProvider("ok")
	conv := NewConversation(NewClient(provider), "u", "test-model",
		WithSystemPrompt("be brief"))

	if _, err := conv.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs := provider.lastReq.Messages
	if len(msgs) == 0 || msgs[0].Role != RoleSystem || msgs[0].Content != "be brief" {
		t.Errorf("request did not lead with the system prompt: %+v", msgs)
	}
	// The system prompt is a request-view concern, not history.
	history, _ := conv.History(context.Background())
	for _, m := range history {
		if m.Role == RoleSystem {
			t.Errorf("system prompt leaked into history: %+v", history)
		}
	}
}

func TestConversationSendErrorLeavesUserTurn(t *testing.T) {
	provider := &fakeProvider{results: []fakeResult{
		{err: &ProviderError{Status: 401, Err: ErrUnauthorized}},
	}}
	conv := NewConversation(NewClient(provider), "u", "test-model")

	_, err := conv.Send(context.Background(), "hello")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Send() error = %v, want ErrUnauthorized", err)
	}

	// The user turn stays recorded; only the assistant turn is missing.
	history, _ := conv.History(context.Background())
	if len(history) != 1 || history[0].Role != RoleUser {
		t.Errorf("history = %+v, want just the user turn", history)
	}
}

func TestConversationSendAppliesSamplingOptions(t *testing.T) {
	provider := okProvider("ok")
	conv := NewConversation(NewClient(provider), "u", "test-model",
		WithTemperature(0.7),
		WithMaxTokens(512))

	if _, err := conv.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	req := provider.lastReq
	if req.Temperature == nil || *req.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", req.MaxTokens)
	}
}

func TestConversationStreamCommitsOnDrain(t *testing.T) {
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return scriptedStream([]string{"str", "eam", "ed"}, nil, ""), nil
		},
	}
	conv := NewConversation(NewClient(provider), "u", "test-model")

	stream, err := conv.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var got strings.Builder
	for chunk := range stream.Ch {
		got.WriteString(chunk.Delta)
	}
	if got.String() != "streamed" {
		t.Errorf("fragments = %q, want %q", got.String(), "streamed")
	}

	select {
	case resp, ok := <-stream.Final:
		if !ok || resp == nil {
			t.Fatal("expected a final response")
		}
		if resp.Output != "streamed" {
			t.Errorf("final Output = %q, want %q", resp.Output, "streamed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no final response")
	}

	history, _ := conv.History(context.Background())
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[1].Role != RoleAssistant || history[1].Content != "streamed" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestConversationStreamErrorSkipsCommit(t *testing.T) {
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return scriptedStream([]string{"half"}, &ProviderError{Status: 500, Err: ErrServer}, ""), nil
		},
	}
	conv := NewConversation(NewClient(provider), "u", "test-model")

	stream, err := conv.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	for range stream.Ch {
	}

	select {
	case err := <-stream.Err:
		if !errors.Is(err, ErrServer) {
			t.Errorf("stream error = %v, want ErrServer", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no stream error")
	}

	// Only the user turn is committed.
	history, _ := conv.History(context.Background())
	if len(history) != 1 || history[0].Role != RoleUser {
		t.Errorf("history = %+v, want just the user turn", history)
	}
}

func TestConversationStreamBuffersUnreadFragments(t *testing.T) {
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return scriptedStream([]string{"hi"}, nil, "hi"), nil
		},
	}
	conv := NewConversation(NewClient(provider), "u", "test-model")

	stream, err := conv.Stream(context.Background(), "go")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	// Never read Ch; a short reply still completes and commits because
	// fragments are buffered.
	select {
	case resp := <-stream.Final:
		if resp == nil || resp.Output != "hi" {
			t.Errorf("final = %+v, want Output hi", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not complete without a consumer")
	}

	history, _ := conv.History(context.Background())
	if len(history) != 2 || history[1].Role != RoleAssistant {
		t.Errorf("history = %+v, want user and assistant turns", history)
	}
}

func TestConversationStreamCancelSkipsCommit(t *testing.T) {
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			ch := make(chan ChatChunk, 1)
			errCh := make(chan error, 1)
			finalCh := make(chan *ChatResponse, 1)
			ch <- ChatChunk{Delta: "par"}
			go func() {
				// Cancellation ends the stream the way the transport
				// does: error out, then close everything.
				<-ctx.Done()
				errCh <- ctx.Err()
				close(ch)
				close(errCh)
				close(finalCh)
			}()
			return &ChatStream{Ch: ch, Err: errCh, Final: finalCh}, nil
		},
	}
	conv := NewConversation(NewClient(provider), "u", "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := conv.Stream(ctx, "go")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	// Read the first fragment, then abandon the turn.
	select {
	case <-stream.Ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no fragment")
	}
	cancel()

	// Wait for the stream to wind down.
	for range stream.Ch {
	}
	<-stream.Err

	history, _ := conv.History(context.Background())
	if len(history) != 1 || history[0].Role != RoleUser {
		t.Errorf("history = %+v, want just the user turn", history)
	}
}

func TestConversationSummarizeTrigger(t *testing.T) {
	ctx := context.Background()

	// The provider answers summarize calls (recognized by their fixed
	// instruction) differently from normal turns.
	provider := &summarizeAwareProvider{reply: "ok", summary: "they discussed testing"}
	store := NewMemoryStore(100)
	conv := NewConversation(NewClient(provider), "u", "test-model",
		WithStore(store),
		WithSummarization(SummarizeConfig{Threshold: 6, KeepTail: 2}))

	// Each Send adds 2 messages. The 4th Send appends its user turn as
	// message 7, crossing the threshold before the call.
	for i := 0; i < 4; i++ {
		if _, err := conv.Send(ctx, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	summary, err := store.Summary(ctx, "u")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary != "they discussed testing" {
		t.Errorf("summary = %q, want %q", summary, "they discussed testing")
	}

	// After summarization only the KeepTail (which includes the triggering
	// user turn) survived, then the assistant reply joined it.
	n, _ := store.Len(ctx, "u")
	if n != 3 {
		t.Errorf("live messages = %d, want 3 (2 kept + assistant)", n)
	}

	if provider.summarizeCalls != 1 {
		t.Errorf("summarize calls = %d, want 1", provider.summarizeCalls)
	}
}

func TestConversationSummarizeFailureIsSilent(t *testing.T) {
	ctx := context.Background()

	provider := &summarizeAwareProvider{
		reply:        "ok",
		summarizeErr: &ProviderError{Status: 500, Err: ErrServer},
	}
	store := NewMemoryStore(100)
	conv := NewConversation(NewClient(provider), "u", "test-model",
		WithStore(store),
		WithSummarization(SummarizeConfig{Threshold: 2, KeepTail: 1}))

	// The second Send crosses the threshold; its summarize call fails but
	// the turn itself must still succeed.
	for i := 0; i < 2; i++ {
		if _, err := conv.Send(ctx, "hello"); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	if s, _ := store.Summary(ctx, "u"); s != "" {
		t.Errorf("summary = %q, want empty after failed summarization", s)
	}
	if n, _ := store.Len(ctx, "u"); n != 4 {
		t.Errorf("live messages = %d, want 4 (nothing dropped)", n)
	}
}

func TestConversationSummaryAppearsInRequestView(t *testing.T) {
	ctx := context.Background()

	provider := okProvider("ok")
	store := NewMemoryStore(100)
	_ = store.AppendSummary(ctx, "u", "earlier they said hi")

	conv := NewConversation(NewClient(provider), "u", "test-model", WithStore(store))
	if _, err := conv.Send(ctx, "and now?"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	found := false
	for _, m := range provider.lastReq.Messages {
		if m.Role == RoleSystem && strings.Contains(m.Content, "earlier they said hi") {
			found = true
		}
	}
	if !found {
		t.Errorf("request view lacks the summary message: %+v", provider.lastReq.Messages)
	}
}

func TestConversationClear(t *testing.T) {
	ctx := context.Background()
	conv := NewConversation(NewClient(okProvider("ok")), "u", "test-model")

	if _, err := conv.Send(ctx, "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := conv.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	history, _ := conv.History(ctx)
	if len(history) != 0 {
		t.Errorf("history = %+v after clear, want empty", history)
	}
}

// summarizeAwareProvider distinguishes summarization calls from normal
// turns by the fixed summarize instruction in the first system message.
type summarizeAwareProvider struct {
	fakeProvider
	reply          string
	summary        string
	summarizeErr   error
	summarizeCalls int
}

func (p *summarizeAwareProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.lastReq = req
	p.calls++
	p.mu.Unlock()

	if len(req.Messages) > 0 &&
		req.Messages[0].Role == RoleSystem &&
		strings.Contains(req.Messages[0].Content, "Summarize this conversation") {
		p.summarizeCalls++
		if p.summarizeErr != nil {
			return nil, p.summarizeErr
		}
		return &ChatResponse{Output: p.summary}, nil
	}
	return &ChatResponse{Output: p.reply}, nil
}
