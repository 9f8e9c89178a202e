// Package dispatch executes event deliveries with panic recovery,
// per-delivery timeouts, and outcome classification. It is the delivery
// layer underneath the bus: the bus resolves who receives an event,
// dispatch makes the calls and reports what happened.
package dispatch

import (
	"context"
	"time"
)

// Handler is the interface for delivery targets.
// This mirrors the bus subscriber contract to avoid circular imports;
// the event parameter is type-erased.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event any) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// Delivery pairs a handler with the identity it is delivered under.
type Delivery struct {
	// ID identifies the recipient in results and logs.
	ID string

	// Handler receives the event.
	Handler Handler
}

// Outcome classifies how a delivery ended.
type Outcome int

const (
	// OutcomeOK means the handler completed without error.
	OutcomeOK Outcome = iota

	// OutcomeError means the handler returned an error.
	OutcomeError

	// OutcomeTimeout means the handler did not complete within the
	// delivery timeout.
	OutcomeTimeout

	// OutcomePanic means the handler panicked.
	OutcomePanic

	// OutcomeSkipped means the handler was never invoked because the
	// context was already cancelled.
	OutcomeSkipped
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomePanic:
		return "panic"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result represents the outcome of one delivery.
type Result struct {
	// ID is the recipient identity the delivery ran under.
	ID string

	// Outcome classifies how the delivery ended.
	Outcome Outcome

	// Err is the error returned by the handler, if any.
	Err error

	// PanicValue is the value passed to panic(), when Outcome is
	// OutcomePanic.
	PanicValue any

	// PanicStack is the stack trace captured at the point of panic.
	PanicStack []byte

	// Duration is how long the delivery took, as observed by the
	// dispatcher. For a timed-out delivery this is the timeout, not the
	// (unknown) handler runtime.
	Duration time.Duration
}

// Succeeded reports whether the delivery completed cleanly.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeOK
}

// PanicHandler is called when a handler panics during execution.
// It receives the event being delivered, the panic value, and the
// stack trace.
type PanicHandler func(event any, panicValue any, stack []byte)

// defaultPanicHandler is a no-op; panics are isolated regardless.
func defaultPanicHandler(event any, panicValue any, stack []byte) {}
