package core

import (
	"context"
	"strings"
)

// ChatStream represents a streaming response from the provider.
//
// Channel rules:
//   - Providers MUST close Ch, Err, and Final when finished
//   - On context cancellation, providers MUST terminate promptly and close channels
//   - Err emits at most one error
//   - Final emits exactly once on success (or zero times on setup failure)
type ChatStream struct {
	// Ch emits text fragments in order. Closed when the stream ends.
	Ch <-chan ChatChunk

	// Err emits at most one error. Closed when the stream ends.
	Err <-chan error

	// Final is sent exactly once after successful stream completion.
	// Providers may send a partial ChatResponse with Output empty; the
	// consumer fills it from the accumulated fragments.
	Final <-chan *ChatResponse
}

// DrainStream accumulates all fragments and returns the final ChatResponse.
// Blocks until the stream completes or the context cancels. A stream that
// fails yields an error and no partial content.
func DrainStream(ctx context.Context, s *ChatStream) (*ChatResponse, error) {
	if s == nil {
		return nil, ErrBadRequest
	}

	var accumulated strings.Builder
	var streamErr error
	var finalResp *ChatResponse

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case chunk, ok := <-s.Ch:
			if !ok {
				goto checkErr
			}
			accumulated.WriteString(chunk.Delta)

		case err, ok := <-s.Err:
			if ok && err != nil {
				streamErr = err
			}
			// Keep draining Ch even after an error.

		case resp, ok := <-s.Final:
			if ok {
				finalResp = resp
			}
		}
	}

checkErr:
	select {
	case err, ok := <-s.Err:
		if ok && err != nil {
			streamErr = err
		}
	default:
	}

	if streamErr != nil {
		return nil, streamErr
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-s.Final:
		if ok {
			finalResp = resp
		}
	}

	if finalResp == nil {
		finalResp = &ChatResponse{
			Output: accumulated.String(),
		}
	} else if finalResp.Output == "" {
		finalResp.Output = accumulated.String()
	}

	return finalResp, nil
}
