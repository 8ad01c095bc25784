package core

import (
	"errors"
	"fmt"
)

// ProviderError represents an error returned by the API with full context.
type ProviderError struct {
	Status    int
	RequestID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("roraos: %s (status=%d, request_id=%s)",
			e.Message, e.Status, e.RequestID)
	}
	if e.Status != 0 {
		return fmt.Sprintf("roraos: %s (status=%d)", e.Message, e.Status)
	}
	return "roraos: " + e.Message
}

// Unwrap returns the underlying sentinel for error chaining.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Sentinel errors for classification.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrAPI          = errors.New("api error")
	ErrServer       = errors.New("server error")
	ErrNetwork      = errors.New("network error")
	ErrDecode       = errors.New("decode error")
)

// Validation errors with actionable guidance. These are surfaced
// immediately and never retried.
var (
	ErrNoMessages       = errors.New("no messages: add at least one message using .System(), .User(), or .Assistant()")
	ErrTemperatureRange = errors.New("temperature out of range: must be between 0 and 2")
	ErrMaxTokens        = errors.New("max_tokens out of range: must be a positive integer")
)
