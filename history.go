package pulsebus

// history is a fixed-capacity ring of recently dispatched events,
// overwritten oldest-first. It is advisory only and never participates
// in delivery guarantees.
//
// history is not safe for concurrent use; the bus serializes access
// under its lock.
type history struct {
	events []*Event
	next   int
	full   bool
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{events: make([]*Event, capacity)}
}

// Append records an event, overwriting the oldest when full.
func (h *history) Append(e *Event) {
	h.events[h.next] = e
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of recorded events.
func (h *history) Len() int {
	if h.full {
		return len(h.events)
	}
	return h.next
}

// Recent returns up to limit events, oldest first. A non-positive
// limit returns everything recorded.
func (h *history) Recent(limit int) []*Event {
	n := h.Len()
	if limit <= 0 || limit > n {
		limit = n
	}
	if limit == 0 {
		return nil
	}

	out := make([]*Event, 0, limit)
	// Walk forward from the oldest wanted slot.
	start := h.next - limit
	if start < 0 {
		start += len(h.events)
	}
	for i := 0; i < limit; i++ {
		out = append(out, h.events[(start+i)%len(h.events)])
	}
	return out
}
