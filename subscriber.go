package pulsebus

import (
	"context"

	"github.com/google/uuid"
)

// Subscriber is the capability the bus delivers events to. The bus
// holds only a reference; it never owns subscriber lifecycle.
//
// Handle may be slow or hang; every delivery is bounded by the bus's
// per-delivery timeout and handlers should respect context
// cancellation. Returning an error marks the delivery failed without
// affecting any other subscriber.
type Subscriber interface {
	// ID uniquely identifies the subscriber for deduplication.
	ID() string

	// Active reports whether the subscriber should receive events.
	// Delivery is skipped while Active returns false.
	Active() bool

	// Handle processes one event.
	Handle(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Subscriber interface.
// A HandlerFunc subscriber is always active.
type HandlerFunc struct {
	id string
	fn func(ctx context.Context, event *Event) error
}

// NewHandlerFunc wraps fn as a Subscriber. If id is empty, a unique one
// is generated.
func NewHandlerFunc(id string, fn func(ctx context.Context, event *Event) error) *HandlerFunc {
	if id == "" {
		id = uuid.NewString()
	}
	return &HandlerFunc{id: id, fn: fn}
}

// ID returns the subscriber identifier.
func (h *HandlerFunc) ID() string { return h.id }

// Active always reports true for function subscribers.
func (h *HandlerFunc) Active() bool { return true }

// Handle implements Subscriber.
func (h *HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return h.fn(ctx, event)
}
