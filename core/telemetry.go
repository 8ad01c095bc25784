package core

import "time"

// TelemetryHook receives notifications about request lifecycle events.
// Implementations can use this for logging, metrics, or tracing.
//
// Event types intentionally carry only operational metadata: never API
// keys, never prompt or response content.
type TelemetryHook interface {
	// OnRequestStart is called when a request to the API begins.
	OnRequestStart(e RequestStartEvent)

	// OnRequestEnd is called when a request to the API completes.
	OnRequestEnd(e RequestEndEvent)
}

// RequestStartEvent contains metadata about a starting request.
type RequestStartEvent struct {
	Provider string
	Model    ModelID
	Start    time.Time
}

// RequestEndEvent contains metadata about a completed request.
type RequestEndEvent struct {
	Provider string
	Model    ModelID
	Start    time.Time
	End      time.Time
	Usage    TokenUsage
	Err      error // nil on success
}

// Duration returns the elapsed time for the request.
func (e RequestEndEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// NoopTelemetryHook is the default no-op TelemetryHook.
type NoopTelemetryHook struct{}

func (NoopTelemetryHook) OnRequestStart(RequestStartEvent) {}
func (NoopTelemetryHook) OnRequestEnd(RequestEndEvent)     {}

var _ TelemetryHook = NoopTelemetryHook{}
