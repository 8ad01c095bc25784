package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProvider scripts Chat responses for client tests.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	results []fakeResult

	lastReq *ChatRequest

	streamFn func(ctx context.Context, req *ChatRequest) (*ChatStream, error)
}

type fakeResult struct {
	resp *ChatResponse
	err  error
}

func (f *fakeProvider) ID() string          { return "fake" }
func (f *fakeProvider) Models() []ModelInfo { return nil }
func (f *fakeProvider) Supports(feature Feature) bool {
	return feature == FeatureChat || feature == FeatureChatStreaming
}

func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.resp, r.err
}

func (f *fakeProvider) StreamChat(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
	f.mu.Lock()
	f.lastReq = req
	f.calls++
	f.mu.Unlock()
	if f.streamFn != nil {
		return f.streamFn(ctx, req)
	}
	return scriptedStream(nil, nil, ""), nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedStream builds a ChatStream that emits the given fragments, then
// either an error or a final response.
func scriptedStream(fragments []string, err error, finalOutput string) *ChatStream {
	ch := make(chan ChatChunk, len(fragments)+1)
	errCh := make(chan error, 1)
	finalCh := make(chan *ChatResponse, 1)

	for _, f := range fragments {
		ch <- ChatChunk{Delta: f}
	}
	if err != nil {
		errCh <- err
	} else {
		finalCh <- &ChatResponse{Model: "test-model", Output: finalOutput}
	}
	close(ch)
	close(errCh)
	close(finalCh)

	return &ChatStream{Ch: ch, Err: errCh, Final: finalCh}
}

func okProvider(output string) *fakeProvider {
	return &fakeProvider{results: []fakeResult{
		{resp: &ChatResponse{Model: "test-model", Output: output}},
	}}
}

func TestChatBuilderValidation(t *testing.T) {
	client := NewClient(okProvider("hi"))

	tests := []struct {
		name    string
		build   func() *ChatBuilder
		wantErr error
	}{
		{
			name:    "no messages",
			build:   func() *ChatBuilder { return client.Chat("m") },
			wantErr: ErrNoMessages,
		},
		{
			name:    "empty content",
			build:   func() *ChatBuilder { return client.Chat("m").User("") },
			wantErr: ErrNoMessages,
		},
		{
			name:    "temperature below range",
			build:   func() *ChatBuilder { return client.Chat("m").User("hi").Temperature(-0.1) },
			wantErr: ErrTemperatureRange,
		},
		{
			name:    "temperature above range",
			build:   func() *ChatBuilder { return client.Chat("m").User("hi").Temperature(2.1) },
			wantErr: ErrTemperatureRange,
		},
		{
			name:    "max tokens zero",
			build:   func() *ChatBuilder { return client.Chat("m").User("hi").MaxTokens(0) },
			wantErr: ErrMaxTokens,
		},
		{
			name:    "max tokens negative",
			build:   func() *ChatBuilder { return client.Chat("m").User("hi").MaxTokens(-5) },
			wantErr: ErrMaxTokens,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().GetResponse(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetResponse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatBuilderValidBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *Client) *ChatBuilder
	}{
		{"temperature zero", func(c *Client) *ChatBuilder { return c.Chat("m").User("hi").Temperature(0) }},
		{"temperature two", func(c *Client) *ChatBuilder { return c.Chat("m").User("hi").Temperature(2) }},
		{"max tokens one", func(c *Client) *ChatBuilder { return c.Chat("m").User("hi").MaxTokens(1) }},
		{"no model", func(c *Client) *ChatBuilder { return c.Chat("").User("hi") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(okProvider("hi"))
			if _, err := tt.build(client).GetResponse(context.Background()); err != nil {
				t.Errorf("GetResponse() error = %v, want nil", err)
			}
		})
	}
}

func TestChatBuilderMessageOrder(t *testing.T) {
	provider := okProvider("hi")
	client := NewClient(provider)

	_, err := client.Chat("m").
		System("be terse").
		User("question").
		Assistant("answer").
		User("follow-up").
		GetResponse(context.Background())
	if err != nil {
		t.Fatalf("GetResponse() error = %v", err)
	}

	want := []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "follow-up"},
	}
	got := provider.lastReq.Messages
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGetResponseRetriesServerErrors(t *testing.T) {
	serverErr := &ProviderError{Status: 503, Message: "unavailable", Err: ErrServer}
	provider := &fakeProvider{results: []fakeResult{
		{err: serverErr},
		{err: serverErr},
		{resp: &ChatResponse{Output: "recovered"}},
	}}
	client := NewClient(provider, WithRetryPolicy(NewRetryPolicy(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})))

	resp, err := client.Chat("m").User("hi").GetResponse(context.Background())
	if err != nil {
		t.Fatalf("GetResponse() error = %v", err)
	}
	if resp.Output != "recovered" {
		t.Errorf("Output = %q, want %q", resp.Output, "recovered")
	}
	if provider.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", provider.callCount())
	}
}

func TestGetResponseStopsAtAttemptBudget(t *testing.T) {
	serverErr := &ProviderError{Status: 500, Message: "boom", Err: ErrServer}
	provider := &fakeProvider{results: []fakeResult{{err: serverErr}}}
	client := NewClient(provider, WithRetryPolicy(NewRetryPolicy(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})))

	_, err := client.Chat("m").User("hi").GetResponse(context.Background())
	if !errors.Is(err, ErrServer) {
		t.Fatalf("GetResponse() error = %v, want ErrServer", err)
	}
	if provider.callCount() != 3 {
		t.Errorf("provider called %d times, want 3 total attempts", provider.callCount())
	}
}

func TestGetResponseDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", &ProviderError{Status: 429, Err: ErrRateLimited}},
		{"unauthorized", &ProviderError{Status: 401, Err: ErrUnauthorized}},
		{"bad request", &ProviderError{Status: 400, Err: ErrBadRequest}},
		{"decode", &ProviderError{Message: "bad json", Err: ErrDecode}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{results: []fakeResult{{err: tt.err}}}
			client := NewClient(provider, WithRetryPolicy(NewRetryPolicy(RetryConfig{
				MaxAttempts: 5,
				BaseDelay:   time.Millisecond,
			})))

			_, err := client.Chat("m").User("hi").GetResponse(context.Background())
			if err == nil {
				t.Fatal("GetResponse() expected error")
			}
			if provider.callCount() != 1 {
				t.Errorf("provider called %d times, want 1", provider.callCount())
			}
		})
	}
}

func TestGetResponseHonorsCancelledContext(t *testing.T) {
	serverErr := &ProviderError{Status: 500, Err: ErrServer}
	provider := &fakeProvider{results: []fakeResult{{err: serverErr}}}
	client := NewClient(provider, WithRetryPolicy(NewRetryPolicy(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Hour, // would hang if the context were ignored
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.Chat("m").User("hi").GetResponse(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("GetResponse() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("GetResponse() did not return after context cancellation")
	}
}

func TestStreamDoesNotRetry(t *testing.T) {
	setupErr := &ProviderError{Status: 500, Err: ErrServer}
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return nil, setupErr
		},
	}
	client := NewClient(provider, WithRetryPolicy(NewRetryPolicy(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
	})))

	_, err := client.Chat("m").User("hi").Stream(context.Background())
	if !errors.Is(err, ErrServer) {
		t.Fatalf("Stream() error = %v, want ErrServer", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1 (streams are never retried)", provider.callCount())
	}
}

func TestStreamErrorSurvivesWrapping(t *testing.T) {
	streamErr := &ProviderError{Status: 500, Err: ErrServer}
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return scriptedStream([]string{"half"}, streamErr, ""), nil
		},
	}
	client := NewClient(provider)

	// Looped: the outcome must not depend on channel scheduling.
	for i := 0; i < 200; i++ {
		stream, err := client.Chat("m").User("hi").Stream(context.Background())
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		for range stream.Ch {
		}
		if err := <-stream.Err; !errors.Is(err, ErrServer) {
			t.Fatalf("iteration %d: stream error = %v, want ErrServer", i, err)
		}
	}
}

func TestStreamFinalSurvivesWrapping(t *testing.T) {
	provider := &fakeProvider{
		streamFn: func(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
			return scriptedStream([]string{"he", "llo"}, nil, "hello"), nil
		},
	}
	client := NewClient(provider)

	for i := 0; i < 200; i++ {
		stream, err := client.Chat("m").User("hi").Stream(context.Background())
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		for range stream.Ch {
		}
		if err := <-stream.Err; err != nil {
			t.Fatalf("iteration %d: stream error = %v", i, err)
		}
		resp := <-stream.Final
		if resp == nil || resp.Output != "hello" {
			t.Fatalf("iteration %d: final = %+v, want Output hello", i, resp)
		}
	}
}

func TestClientTelemetryEvents(t *testing.T) {
	hook := &recordingHook{}
	client := NewClient(okProvider("hi"), WithTelemetry(hook))

	if _, err := client.Chat("m").User("hi").GetResponse(context.Background()); err != nil {
		t.Fatalf("GetResponse() error = %v", err)
	}

	if hook.starts != 1 {
		t.Errorf("starts = %d, want 1", hook.starts)
	}
	if hook.ends != 1 {
		t.Errorf("ends = %d, want 1", hook.ends)
	}
}

type recordingHook struct {
	mu     sync.Mutex
	starts int
	ends   int
}

func (h *recordingHook) OnRequestStart(RequestStartEvent) {
	h.mu.Lock()
	h.starts++
	h.mu.Unlock()
}

func (h *recordingHook) OnRequestEnd(RequestEndEvent) {
	h.mu.Lock()
	h.ends++
	h.mu.Unlock()
}
