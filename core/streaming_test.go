package core

import (
	"context"
	"errors"
	"testing"
)

func TestDrainStreamAccumulates(t *testing.T) {
	stream := scriptedStream([]string{"Hel", "lo ", "world"}, nil, "")

	resp, err := DrainStream(context.Background(), stream)
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.Output != "Hello world" {
		t.Errorf("Output = %q, want %q", resp.Output, "Hello world")
	}
}

func TestDrainStreamPrefersFinalOutput(t *testing.T) {
	stream := scriptedStream([]string{"partial"}, nil, "the full text")

	resp, err := DrainStream(context.Background(), stream)
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.Output != "the full text" {
		t.Errorf("Output = %q, want final response output", resp.Output)
	}
}

func TestDrainStreamError(t *testing.T) {
	streamErr := &ProviderError{Status: 500, Message: "boom", Err: ErrServer}
	stream := scriptedStream([]string{"some", "text"}, streamErr, "")

	resp, err := DrainStream(context.Background(), stream)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("DrainStream() error = %v, want ErrServer", err)
	}
	if resp != nil {
		t.Errorf("resp = %+v, want nil on failure", resp)
	}
}

func TestDrainStreamNil(t *testing.T) {
	if _, err := DrainStream(context.Background(), nil); err == nil {
		t.Error("DrainStream(nil) expected error")
	}
}

func TestDrainStreamCancelled(t *testing.T) {
	ch := make(chan ChatChunk)
	errCh := make(chan error)
	finalCh := make(chan *ChatResponse)
	stream := &ChatStream{Ch: ch, Err: errCh, Final: finalCh}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DrainStream(ctx, stream)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DrainStream() error = %v, want context.Canceled", err)
	}
}

func TestDrainStreamEmpty(t *testing.T) {
	stream := scriptedStream(nil, nil, "")

	resp, err := DrainStream(context.Background(), stream)
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.Output != "" {
		t.Errorf("Output = %q, want empty", resp.Output)
	}
}
