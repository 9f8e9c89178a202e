package pulsebus

import "time"

// Statistics is a point-in-time snapshot of bus activity.
type Statistics struct {
	// QueueSize is the current number of queued events.
	QueueSize int

	// QueueCapacity is the configured maximum queue size.
	QueueCapacity int

	// TotalSubscribers counts attachments across direct and filtered
	// routes.
	TotalSubscribers int

	// EventTypes is the number of types with direct subscribers.
	EventTypes int

	// ActiveFilters is the number of registered filters.
	ActiveFilters int

	// Running reports whether the dispatch loop is active.
	Running bool

	// RecentEvents is the number of events held in history.
	RecentEvents int

	// EventsProcessed is the total number of dispatched events.
	EventsProcessed uint64

	// EventsDropped counts queue-full and not-running drops.
	EventsDropped uint64

	// HighPriorityEvents counts emits at or above HighPriority,
	// regardless of queuing outcome.
	HighPriorityEvents uint64

	// SubscriberTimeouts counts deliveries that exceeded the timeout.
	SubscriberTimeouts uint64

	// SubscriberErrors counts handlers that returned errors.
	SubscriberErrors uint64

	// SubscriberPanics counts handlers that panicked.
	SubscriberPanics uint64

	// PersistenceWriteFailures counts records that could not be written.
	PersistenceWriteFailures uint64

	// PersistenceReadFailures counts corrupt records skipped at replay.
	PersistenceReadFailures uint64

	// AvgProcessingTimeMs is the running average time to process one
	// event, including its full fan-out.
	AvgProcessingTimeMs float64
}

// QueueStatus describes the pending queue.
type QueueStatus struct {
	// TotalEvents is the current number of queued events.
	TotalEvents int

	// Capacity is the configured maximum queue size.
	Capacity int

	// Depths maps priority level to the number of queued events at
	// that level.
	Depths map[int]int
}

// Performance summarizes throughput since the last Start.
type Performance struct {
	// Uptime is the time since the bus last started.
	Uptime time.Duration

	// EventsProcessed is the total number of dispatched events.
	EventsProcessed uint64

	// EventsPerSecond is EventsProcessed over Uptime.
	EventsPerSecond float64

	// AvgProcessingTime is the running average per-event processing
	// time.
	AvgProcessingTime time.Duration
}
