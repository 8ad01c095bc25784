package roraos

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/roraos/roraos-go/core"
)

// errorBody matches both error shapes the backend emits: a flat string
// ({"error": "..."}) and the OpenAI object form
// ({"error": {"message": "...", ...}}).
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type errorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// errorMessage extracts the provider-given error text from a response
// body, or "" if absent.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(eb.Error, &s); err == nil {
		return s
	}

	var obj errorObject
	if err := json.Unmarshal(eb.Error, &obj); err == nil {
		return obj.Message
	}
	return ""
}

// normalizeError converts a non-200 response to a ProviderError wrapping
// the appropriate sentinel. Only 5xx is retryable.
func normalizeError(status int, body []byte, requestID string) error {
	message := errorMessage(body)
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}

	var sentinel error
	switch {
	case status == http.StatusBadRequest:
		sentinel = core.ErrBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = core.ErrUnauthorized
	case status == http.StatusNotFound:
		sentinel = core.ErrNotFound
	case status == http.StatusTooManyRequests:
		sentinel = core.ErrRateLimited
	case status >= 500:
		sentinel = core.ErrServer
	default:
		sentinel = core.ErrAPI
	}

	return &core.ProviderError{
		Status:    status,
		RequestID: requestID,
		Message:   message,
		Err:       sentinel,
	}
}

// newNetworkError wraps a connection-level failure (timeout, DNS, reset).
func newNetworkError(err error) error {
	return &core.ProviderError{
		Message: err.Error(),
		Err:     core.ErrNetwork,
	}
}

// newDecodeError wraps a JSON decode failure on a successful response.
func newDecodeError(err error) error {
	return &core.ProviderError{
		Message: err.Error(),
		Err:     core.ErrDecode,
	}
}
