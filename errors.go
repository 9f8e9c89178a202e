package pulsebus

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bus. None of these escape through Emit or the
// registry surface; they classify failures for logs, statistics, and
// the dispatch layer.
var (
	// ErrBusNotRunning classifies events dropped because the bus is stopped.
	ErrBusNotRunning = errors.New("event bus is not running")

	// ErrQueueFull classifies events dropped because they did not outrank
	// the queue minimum.
	ErrQueueFull = errors.New("event queue is full")

	// ErrSubscriberTimeout classifies deliveries that exceeded the
	// per-subscriber timeout.
	ErrSubscriberTimeout = errors.New("subscriber timed out")

	// ErrUnknownFilter is reported when subscribing to a filter name that
	// has not been added.
	ErrUnknownFilter = errors.New("unknown filter name")
)

// DeliveryError wraps a failure delivering one event to one subscriber.
type DeliveryError struct {
	// SubscriberID identifies the subscriber whose delivery failed.
	SubscriberID string

	// Type is the type of the event being delivered.
	Type Type

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s for %s: %v", e.SubscriberID, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}
