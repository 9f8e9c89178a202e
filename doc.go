// Package pulsebus provides an in-process priority event bus for
// modular applications.
//
// The bus routes immutable events between independent components. A
// producer emits an event, the bounded priority queue orders it against
// everything else pending, and a single dispatch loop fans it out to
// every matching subscriber concurrently. Components never call each
// other directly; the bus is the only coupling point.
//
// # Architecture
//
//	Emit(event) ──► Priority Queue ──► Dispatch Loop ──► Fan-out
//	                 (bounded,            (single          (concurrent,
//	                  persist-first)       consumer)        per-delivery
//	                                                        timeout)
//
// # Ordering and Backpressure
//
// Events dequeue priority-first (10 highest), FIFO within a priority
// band. The queue is bounded: when full, an incoming event is accepted
// only if its priority strictly outranks the lowest-priority queued
// entry, which is then evicted. Otherwise the incoming event is
// dropped. A continuous stream of priority-10 events can starve lower
// priorities indefinitely; that is an accepted tradeoff, not a defect.
//
// # Delivery
//
// Deliveries for one event run concurrently, each bounded by its own
// timeout (default 5s) with panic recovery. A hanging, failing, or
// panicking subscriber never delays another subscriber or stops the
// loop. Events are processed one at a time; only the fan-out within a
// single event is parallel.
//
// # Basic Usage
//
//	bus := pulsebus.New(
//	    pulsebus.WithQueueSize(500),
//	    pulsebus.WithLogger(logger),
//	)
//	bus.Start()
//	defer bus.Stop(context.Background())
//
//	bus.Subscribe("voice.command", pulsebus.NewHandlerFunc("nlp", handle))
//
//	bus.AddFilter("urgent", pulsebus.NewFilter().WithMinPriority(8))
//	bus.SubscribeWithFilter("urgent", alerting)
//
//	bus.Emit(pulsebus.NewWithPriority("voice.command",
//	    map[string]any{"text": "set a reminder"}, "voice", 7))
//
// # Durability
//
// With persistence enabled, events at or above the threshold (default
// 9) are written to disk before queuing, one JSON record per event.
// On the next Start, records younger than the replay window (default
// 1h) are re-injected once and every record is removed. This is
// best-effort replay, not exactly-once delivery.
//
// # Error Containment
//
// Nothing propagates to callers: Emit is fire-and-forget, drops and
// delivery failures are logged and counted, and no subscriber or
// persistence failure is fatal to the bus.
//
// # Subpackages
//
//   - dispatch: delivery execution with timeouts, panic recovery, and
//     outcome classification
//   - persist: critical-event records and startup replay
package pulsebus
