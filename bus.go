package pulsebus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/pulsebus/dispatch"
	"github.com/dshills/pulsebus/persist"
)

// Bus is an in-process priority event bus. Producers emit events,
// subscribers receive them by type or through named filters, and a
// single dispatch loop drains the bounded priority queue, fanning each
// event out to its recipients concurrently.
//
// All state lives inside the Bus value; independent buses can coexist.
// Every method is safe for concurrent use.
//
// The queue, history, and statistics share one coarse lock between
// producers and the dispatch loop. This is a deliberate simplification
// for moderate in-process event volume and is the bus's known scaling
// limit under high-frequency load.
type Bus struct {
	registry *registry
	fan      *dispatch.Fanout
	store    *persist.Store // nil when persistence is disabled
	config   busConfig
	log      zerolog.Logger

	// mu guards queue, hist, and startedAt.
	mu    sync.Mutex
	queue *queue
	hist  *history

	// lifecycle guards cancel/done across Start and Stop.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	running atomic.Bool
	paused  atomic.Bool

	// Stats
	processed     atomic.Uint64
	dropped       atomic.Uint64
	highPriority  atomic.Uint64
	persistWrite  atomic.Uint64
	persistRead   atomic.Uint64
	totalProcNs   atomic.Int64
	replayedTotal atomic.Uint64
}

// New creates a bus with the given options. The bus starts in the
// Stopped state; events emitted before Start are dropped.
//
// If persistence is enabled but its directory cannot be created, the
// failure is logged and the bus runs with persistence disabled rather
// than failing construction.
func New(opts ...Option) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		registry: newRegistry(),
		config:   config,
		log:      config.logger,
		queue:    newQueue(config.queueSize),
		hist:     newHistory(config.historySize),
	}

	b.fan = dispatch.NewFanout(
		dispatch.WithTimeout(config.deliveryTimeout),
		dispatch.WithPanicHandler(func(event any, panicValue any, _ []byte) {
			if e, ok := event.(*Event); ok {
				b.log.Error().
					Str("type", string(e.Type)).
					Any("panic", panicValue).
					Msg("subscriber panicked")
			}
		}),
	)

	if config.persistDir != "" {
		store, err := persist.NewStore(config.persistDir, config.logger)
		if err != nil {
			b.log.Error().Err(err).Msg("persistence disabled")
		} else {
			b.store = store
		}
	}

	return b
}

// Start begins the dispatch loop. It is idempotent; starting a running
// bus is a no-op. When persistence is enabled, records inside the
// replay window are re-injected before the loop begins.
func (b *Bus) Start() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.running.Swap(true) {
		return
	}

	b.mu.Lock()
	b.startedAt = time.Now()
	b.mu.Unlock()

	if b.store != nil {
		replayed, skipped := b.store.Replay(b.config.replayWindow, func(rec persist.Record) {
			// Replay bypasses persistence so a record is never
			// rewritten and replayed again after a later restart.
			b.enqueue(recordToEvent(rec), false)
		})
		b.persistRead.Add(uint64(skipped))
		b.replayedTotal.Add(uint64(replayed))
		if replayed > 0 || skipped > 0 {
			b.log.Info().Int("replayed", replayed).Int("skipped", skipped).Msg("replayed persisted events")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(ctx, b.done)

	b.log.Info().Msg("event bus started")
}

// Stop cancels the dispatch loop and waits for it to exit, or until
// ctx is done. Events emitted after Stop are dropped. The bus can be
// started again.
func (b *Bus) Stop(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}

	b.cancel()
	select {
	case <-b.done:
		b.log.Info().Msg("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the bus if running and clears all subscriptions,
// filters, and history.
func (b *Bus) Close(ctx context.Context) error {
	err := b.Stop(ctx)
	if err == ErrBusNotRunning {
		err = nil
	}

	b.registry.Clear()
	b.mu.Lock()
	b.hist = newHistory(b.config.historySize)
	b.mu.Unlock()
	return err
}

// Pause suspends dequeuing. Emit continues to queue events; delivery
// resumes with Resume. Pausing does not affect the running state.
func (b *Bus) Pause() {
	b.paused.Store(true)
}

// Resume restarts dequeuing after a pause.
func (b *Bus) Resume() {
	b.paused.Store(false)
}

// IsRunning reports whether the dispatch loop is active.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// IsPaused reports whether dequeuing is suspended.
func (b *Bus) IsPaused() bool {
	return b.paused.Load()
}

// Emit queues an event for delivery. It never blocks and never
// reports delivery outcome: a stopped bus drops the event, a full
// queue drops whichever event loses the priority comparison, and every
// drop is counted and logged.
func (b *Bus) Emit(e *Event) {
	if e == nil {
		return
	}
	e.normalize()

	// Counted before any drop decision so the counter reflects every
	// high-priority emit, delivered or not.
	if e.IsHighPriority() {
		b.highPriority.Add(1)
	}

	if !b.running.Load() {
		b.dropped.Add(1)
		b.log.Warn().
			Str("type", string(e.Type)).
			Err(ErrBusNotRunning).
			Msg("dropping event")
		return
	}

	b.enqueue(e, true)
}

// enqueue applies the backpressure policy of one emit: the durable
// write first, then the bounded insert.
func (b *Bus) enqueue(e *Event, persistAllowed bool) {
	// The record is written before the event is queued so a crash
	// between the two still leaves a replayable record.
	if persistAllowed && b.store != nil && e.Priority >= b.config.persistThreshold {
		if err := b.store.Write(eventToRecord(e)); err != nil {
			b.persistWrite.Add(1)
			b.log.Error().Err(err).Str("event", e.ID).Msg("persistence write failed")
		}
	}

	b.mu.Lock()
	droppedEvent, accepted := b.queue.Offer(e)
	b.mu.Unlock()

	if droppedEvent == nil {
		return
	}
	b.dropped.Add(1)
	if accepted {
		b.log.Warn().
			Str("type", string(droppedEvent.Type)).
			Int("priority", droppedEvent.Priority).
			Msg("evicted queued event for higher-priority arrival")
	} else {
		b.log.Warn().
			Str("type", string(droppedEvent.Type)).
			Int("priority", droppedEvent.Priority).
			Err(ErrQueueFull).
			Msg("dropping event")
	}
}

// Subscribe attaches a subscriber to an event type.
func (b *Bus) Subscribe(typ Type, sub Subscriber) {
	if sub == nil {
		return
	}
	b.registry.Subscribe(typ, sub)
}

// Unsubscribe detaches a subscriber from an event type.
func (b *Bus) Unsubscribe(typ Type, sub Subscriber) {
	if sub == nil {
		return
	}
	b.registry.Unsubscribe(typ, sub)
}

// AddFilter registers a named routing rule.
func (b *Bus) AddFilter(name string, f Filter) {
	b.registry.AddFilter(name, f)
}

// RemoveFilter deletes a named rule and its attached subscribers.
func (b *Bus) RemoveFilter(name string) {
	b.registry.RemoveFilter(name)
}

// SubscribeWithFilter attaches a subscriber to an existing filter.
// An unknown filter name is a no-op with a warning, not an error.
func (b *Bus) SubscribeWithFilter(name string, sub Subscriber) {
	if sub == nil {
		return
	}
	if err := b.registry.SubscribeWithFilter(name, sub); err != nil {
		b.log.Warn().Str("filter", name).Err(err).Msg("subscribe with filter ignored")
	}
}

// Flush synchronously drains the queue, bypassing the idle wait, and
// returns the number of events processed. Intended for deterministic
// shutdown and tests. If the bus was running when Flush began and is
// stopped mid-drain, Flush stops early; on an already-stopped bus it
// drains everything that remains.
//
// Pause before flushing a running bus: otherwise Flush and the
// dispatch loop both pop events and deliveries briefly run two at a
// time instead of one.
func (b *Bus) Flush() int {
	wasRunning := b.running.Load()

	count := 0
	for {
		if wasRunning && !b.running.Load() {
			break
		}
		b.mu.Lock()
		e := b.queue.Pop()
		b.mu.Unlock()
		if e == nil {
			break
		}
		b.process(context.Background(), e)
		count++
	}
	return count
}

// loop is the single logical consumer. It drains bursts back-to-back
// and idle-waits a fixed interval when the queue is empty or the bus
// is paused; a wake-on-push design would trim the poll latency but the
// fixed interval keeps the loop simple.
func (b *Bus) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var e *Event
		if !b.paused.Load() {
			b.mu.Lock()
			e = b.queue.Pop()
			b.mu.Unlock()
		}

		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.config.idleInterval):
			}
			continue
		}

		b.process(ctx, e)
	}
}

// process dispatches one event: record it in history, resolve the
// recipient set, fan out concurrently, and update processing stats.
// Zero recipients is not an error.
func (b *Bus) process(ctx context.Context, e *Event) {
	start := time.Now()

	b.mu.Lock()
	b.hist.Append(e)
	b.mu.Unlock()

	recipients := b.registry.Recipients(e)
	if len(recipients) > 0 {
		deliveries := make([]dispatch.Delivery, len(recipients))
		for i, sub := range recipients {
			deliveries[i] = dispatch.Delivery{
				ID:      sub.ID(),
				Handler: subscriberHandler(sub),
			}
		}

		results := b.fan.Dispatch(ctx, e, deliveries)
		for _, res := range results {
			b.reportDelivery(e, res)
		}
	}

	b.processed.Add(1)
	b.totalProcNs.Add(time.Since(start).Nanoseconds())
}

// reportDelivery logs one failed delivery. Outcome counting lives in
// the fan-out dispatcher.
func (b *Bus) reportDelivery(e *Event, res dispatch.Result) {
	switch res.Outcome {
	case dispatch.OutcomeTimeout:
		b.log.Warn().
			Err(&DeliveryError{SubscriberID: res.ID, Type: e.Type, Err: ErrSubscriberTimeout}).
			Dur("timeout", b.config.deliveryTimeout).
			Msg("delivery timed out")
	case dispatch.OutcomeError:
		b.log.Error().
			Err(&DeliveryError{SubscriberID: res.ID, Type: e.Type, Err: res.Err}).
			Msg("delivery failed")
	case dispatch.OutcomePanic:
		b.log.Error().
			Str("subscriber", res.ID).
			Str("type", string(e.Type)).
			Any("panic", res.PanicValue).
			Msg("delivery panicked")
	}
}

// subscriberHandler adapts a Subscriber to the dispatch handler
// contract.
func subscriberHandler(sub Subscriber) dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, event any) error {
		return sub.Handle(ctx, event.(*Event))
	})
}

// Statistics returns a snapshot of bus activity.
func (b *Bus) Statistics() Statistics {
	fs := b.fan.Stats()

	b.mu.Lock()
	queueSize := b.queue.Len()
	queueCap := b.queue.Capacity()
	recent := b.hist.Len()
	b.mu.Unlock()

	processed := b.processed.Load()
	var avgMs float64
	if processed > 0 {
		avgMs = float64(b.totalProcNs.Load()) / float64(processed) / float64(time.Millisecond)
	}

	return Statistics{
		QueueSize:                queueSize,
		QueueCapacity:            queueCap,
		TotalSubscribers:         b.registry.CountSubscribers(),
		EventTypes:               b.registry.CountTypes(),
		ActiveFilters:            b.registry.CountFilters(),
		Running:                  b.running.Load(),
		RecentEvents:             recent,
		EventsProcessed:          processed,
		EventsDropped:            b.dropped.Load(),
		HighPriorityEvents:       b.highPriority.Load(),
		SubscriberTimeouts:       fs.TimedOut,
		SubscriberErrors:         fs.Failed,
		SubscriberPanics:         fs.Panicked,
		PersistenceWriteFailures: b.persistWrite.Load(),
		PersistenceReadFailures:  b.persistRead.Load(),
		AvgProcessingTimeMs:      avgMs,
	}
}

// QueueStatus describes the pending queue.
func (b *Bus) QueueStatus() QueueStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	return QueueStatus{
		TotalEvents: b.queue.Len(),
		Capacity:    b.queue.Capacity(),
		Depths:      b.queue.Depths(),
	}
}

// RecentEvents returns up to limit recently dispatched events, oldest
// first. A non-positive limit returns the full history.
func (b *Bus) RecentEvents(limit int) []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.hist.Recent(limit)
}

// Performance summarizes throughput since the last Start.
func (b *Bus) Performance() Performance {
	b.mu.Lock()
	startedAt := b.startedAt
	b.mu.Unlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	processed := b.processed.Load()
	var perSec float64
	if uptime > 0 {
		perSec = float64(processed) / uptime.Seconds()
	}

	var avg time.Duration
	if processed > 0 {
		avg = time.Duration(b.totalProcNs.Load() / int64(processed))
	}

	return Performance{
		Uptime:            uptime,
		EventsProcessed:   processed,
		EventsPerSecond:   perSec,
		AvgProcessingTime: avg,
	}
}

// eventToRecord converts an event to its durable form.
func eventToRecord(e *Event) persist.Record {
	return persist.Record{
		ID:        e.ID,
		Type:      string(e.Type),
		Data:      e.Data,
		Source:    e.Source,
		Priority:  e.Priority,
		Timestamp: e.Timestamp,
	}
}

// recordToEvent converts a durable record back to an event.
func recordToEvent(rec persist.Record) *Event {
	return &Event{
		ID:        rec.ID,
		Type:      Type(rec.Type),
		Data:      rec.Data,
		Source:    rec.Source,
		Priority:  rec.Priority,
		Timestamp: rec.Timestamp,
	}
}
