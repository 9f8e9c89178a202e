package pulsebus

import (
	"time"

	"github.com/google/uuid"
)

// Type is the hierarchical event kind (e.g., "voice.command").
// Applications define their own Type constants.
type Type string

// Priority bounds for events. Higher values are more urgent.
const (
	MinPriority = 1
	MaxPriority = 10

	// DefaultPriority is used when no explicit priority is given.
	DefaultPriority = 5

	// HighPriority marks the threshold for the high-priority counter.
	HighPriority = 8
)

// Event is an immutable message routed by the bus.
// Once constructed, an Event is never mutated; it is shared by
// reference with every recipient.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type is the event kind used for direct subscription routing.
	Type Type `json:"type"`

	// Data is the opaque event payload.
	Data map[string]any `json:"data"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	// Priority is in [1, 10]; higher values are dequeued first.
	Priority int `json:"priority"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event with the default priority.
func NewEvent(typ Type, data map[string]any, source string) *Event {
	return NewWithPriority(typ, data, source, DefaultPriority)
}

// NewWithPriority creates an event with an explicit priority.
// The priority is clamped to [MinPriority, MaxPriority].
func NewWithPriority(typ Type, data map[string]any, source string, priority int) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      data,
		Source:    source,
		Priority:  clampPriority(priority),
		Timestamp: time.Now(),
	}
}

// IsHighPriority reports whether the event counts toward the
// high-priority statistics counter.
func (e *Event) IsHighPriority() bool {
	return e.Priority >= HighPriority
}

// normalize fills in fields a hand-built Event may have left zero.
// Used on the emit path so literal Events behave like constructed ones.
func (e *Event) normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Priority == 0 {
		e.Priority = DefaultPriority
	}
	e.Priority = clampPriority(e.Priority)
}

func clampPriority(p int) int {
	switch {
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}
