package pulsebus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// collector records every event it receives.
type collector struct {
	id string

	mu     sync.Mutex
	events []*Event
}

func newCollector(id string) *collector {
	return &collector{id: id}
}

func (c *collector) ID() string   { return c.id }
func (c *collector) Active() bool { return true }

func (c *collector) Handle(ctx context.Context, e *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{WithIdleInterval(2 * time.Millisecond)}, opts...)
	b := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return b
}

func TestBus_StartStop(t *testing.T) {
	b := New()

	if b.IsRunning() {
		t.Error("new bus should not be running")
	}

	b.Start()
	if !b.IsRunning() {
		t.Error("expected bus to be running after Start()")
	}

	// Start is idempotent.
	b.Start()
	if !b.IsRunning() {
		t.Error("second Start() should be a no-op")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if b.IsRunning() {
		t.Error("expected bus to be stopped after Stop()")
	}

	if err := b.Stop(ctx); err != ErrBusNotRunning {
		t.Errorf("expected ErrBusNotRunning, got %v", err)
	}
}

func TestBus_Restart(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")
	b.Subscribe("t", sub)

	b.Start()
	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return sub.Count() == 1 })

	ctx := context.Background()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	// Subscriptions survive a restart.
	b.Start()
	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return sub.Count() == 2 })
}

func TestBus_EmitNotRunningDrops(t *testing.T) {
	b := New()
	sub := newCollector("sub")
	b.Subscribe("t", sub)

	b.Emit(NewEvent("t", nil, "src"))

	stats := b.Statistics()
	if stats.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", stats.EventsDropped)
	}
	if stats.QueueSize != 0 {
		t.Errorf("QueueSize = %d, want 0", stats.QueueSize)
	}
	if sub.Count() != 0 {
		t.Error("stopped bus delivered an event")
	}
}

func TestBus_DeliversByType(t *testing.T) {
	b := newTestBus(t)
	voice := newCollector("voice")
	calendar := newCollector("calendar")
	b.Subscribe("voice.command", voice)
	b.Subscribe("calendar.reminder", calendar)
	b.Start()

	b.Emit(NewEvent("voice.command", map[string]any{"text": "hi"}, "mic"))

	waitFor(t, time.Second, func() bool { return voice.Count() == 1 })
	if calendar.Count() != 0 {
		t.Error("event delivered to a subscriber of a different type")
	}
}

func TestBus_PriorityOrdering(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")
	b.Subscribe("t", sub)

	b.Start()
	b.Pause()

	b.Emit(NewWithPriority("t", map[string]any{"n": "low"}, "src", 2))
	b.Emit(NewWithPriority("t", map[string]any{"n": "high"}, "src", 9))
	b.Emit(NewWithPriority("t", map[string]any{"n": "medium"}, "src", 5))

	b.Resume()
	waitFor(t, time.Second, func() bool { return sub.Count() == 3 })

	got := sub.Events()
	want := []string{"high", "medium", "low"}
	for i, name := range want {
		if got[i].Data["n"] != name {
			t.Errorf("delivery %d = %v, want %q", i, got[i].Data["n"], name)
		}
	}
}

func TestBus_FanOutIsolation(t *testing.T) {
	b := newTestBus(t, WithDeliveryTimeout(50*time.Millisecond))

	fast := newCollector("fast")
	block := make(chan struct{})
	hung := NewHandlerFunc("hung", func(ctx context.Context, e *Event) error {
		<-block // never returns until the test ends
		return nil
	})
	defer close(block)

	b.Subscribe("t", fast)
	b.Subscribe("t", hung)
	b.Start()

	start := time.Now()
	b.Emit(NewEvent("t", nil, "src"))

	waitFor(t, time.Second, func() bool { return fast.Count() == 1 })
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("fast subscriber waited %v on the hung subscriber", elapsed)
	}

	waitFor(t, time.Second, func() bool {
		return b.Statistics().SubscriberTimeouts == 1
	})

	// The loop keeps delivering after a timeout.
	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return fast.Count() == 2 })
}

func TestBus_SubscriberErrorIsolation(t *testing.T) {
	b := newTestBus(t)
	failing := NewHandlerFunc("failing", func(ctx context.Context, e *Event) error {
		return errors.New("handler failure")
	})
	normal := newCollector("normal")

	b.Subscribe("t", failing)
	b.Subscribe("t", normal)
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))
	b.Emit(NewEvent("t", nil, "src"))

	waitFor(t, time.Second, func() bool { return normal.Count() == 2 })
	if got := b.Statistics().SubscriberErrors; got != 2 {
		t.Errorf("SubscriberErrors = %d, want 2", got)
	}
}

func TestBus_SubscriberPanicIsolation(t *testing.T) {
	b := newTestBus(t)
	panicking := NewHandlerFunc("panicking", func(ctx context.Context, e *Event) error {
		panic("boom")
	})
	normal := newCollector("normal")

	b.Subscribe("t", panicking)
	b.Subscribe("t", normal)
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))

	waitFor(t, time.Second, func() bool { return normal.Count() == 1 })
	waitFor(t, time.Second, func() bool { return b.Statistics().SubscriberPanics == 1 })
}

func TestBus_NoSubscribersIsNotAnError(t *testing.T) {
	b := newTestBus(t)
	b.Start()

	b.Emit(NewEvent("orphan", nil, "src"))

	waitFor(t, time.Second, func() bool {
		return b.Statistics().EventsProcessed == 1
	})
}

func TestBus_FilterRouting(t *testing.T) {
	b := newTestBus(t)
	urgent := newCollector("urgent")
	all := newCollector("all")

	b.Subscribe("voice.command", all)
	b.AddFilter("urgent-voice", NewFilter().WithTypes("voice.command").WithMinPriority(7))
	b.SubscribeWithFilter("urgent-voice", urgent)
	b.Start()

	b.Emit(NewWithPriority("voice.command", nil, "mic", 3))
	b.Emit(NewWithPriority("voice.command", nil, "mic", 8))

	waitFor(t, time.Second, func() bool { return all.Count() == 2 })
	waitFor(t, time.Second, func() bool { return urgent.Count() == 1 })
	if urgent.Events()[0].Priority != 8 {
		t.Errorf("filtered subscriber received priority %d, want 8", urgent.Events()[0].Priority)
	}
}

func TestBus_SubscribeWithUnknownFilterIsNoOp(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")

	// Must not panic or error; just a logged warning.
	b.SubscribeWithFilter("missing", sub)
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return b.Statistics().EventsProcessed == 1 })
	if sub.Count() != 0 {
		t.Error("subscriber attached to a missing filter received an event")
	}
}

func TestBus_Flush(t *testing.T) {
	b := newTestBus(t)
	b.Start()
	b.Pause()

	for i := 0; i < 5; i++ {
		b.Emit(NewEvent("t", nil, "src"))
	}
	waitFor(t, time.Second, func() bool { return b.QueueStatus().TotalEvents == 5 })

	if got := b.Flush(); got != 5 {
		t.Errorf("Flush() = %d, want 5", got)
	}
	if got := b.QueueStatus().TotalEvents; got != 0 {
		t.Errorf("queue not empty after Flush(): %d", got)
	}
}

func TestBus_FlushDelivers(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.Start()
	b.Pause()

	b.Emit(NewEvent("t", nil, "src"))
	b.Emit(NewEvent("t", nil, "src"))

	if got := b.Flush(); got != 2 {
		t.Errorf("Flush() = %d, want 2", got)
	}
	if sub.Count() != 2 {
		t.Errorf("subscriber received %d events via Flush, want 2", sub.Count())
	}
}

func TestBus_FlushAfterStopDrains(t *testing.T) {
	b := New(WithIdleInterval(time.Minute))
	b.Start()
	b.Pause()
	b.Emit(NewEvent("t", nil, "src"))
	b.Emit(NewEvent("t", nil, "src"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if got := b.Flush(); got != 2 {
		t.Errorf("Flush() after Stop = %d, want 2", got)
	}
}

func TestBus_BackpressureCounting(t *testing.T) {
	b := newTestBus(t, WithQueueSize(3))
	b.Start()
	b.Pause()

	for i := 0; i < 3; i++ {
		b.Emit(NewWithPriority("t", nil, "src", 2))
	}
	b.Emit(NewWithPriority("t", nil, "src", 5)) // evicts a priority-2 event
	b.Emit(NewWithPriority("t", nil, "src", 1)) // rejected outright

	stats := b.Statistics()
	if stats.EventsDropped != 2 {
		t.Errorf("EventsDropped = %d, want 2", stats.EventsDropped)
	}

	status := b.QueueStatus()
	if status.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", status.TotalEvents)
	}
	if status.Depths[2] != 2 || status.Depths[5] != 1 {
		t.Errorf("Depths = %v, want map[2:2 5:1]", status.Depths)
	}
}

func TestBus_HighPriorityCounter(t *testing.T) {
	b := newTestBus(t, WithQueueSize(1))
	b.Start()
	b.Pause()

	b.Emit(NewWithPriority("t", nil, "src", 8))
	// Queue full; this one is dropped but still counted high priority.
	b.Emit(NewWithPriority("t", nil, "src", 8))

	stats := b.Statistics()
	if stats.HighPriorityEvents != 2 {
		t.Errorf("HighPriorityEvents = %d, want 2", stats.HighPriorityEvents)
	}
	if stats.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", stats.EventsDropped)
	}
}

func TestBus_HighPriorityCountedWhenStopped(t *testing.T) {
	b := New()

	// Never started; the drop must not hide the high-priority emit.
	b.Emit(NewWithPriority("t", nil, "src", 9))

	stats := b.Statistics()
	if stats.HighPriorityEvents != 1 {
		t.Errorf("HighPriorityEvents = %d, want 1", stats.HighPriorityEvents)
	}
	if stats.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", stats.EventsDropped)
	}
}

func TestBus_RecentEvents(t *testing.T) {
	b := newTestBus(t, WithHistorySize(3))
	b.Start()

	for i := 0; i < 5; i++ {
		b.Emit(NewEvent("t", map[string]any{"i": i}, "src"))
	}
	waitFor(t, time.Second, func() bool { return b.Statistics().EventsProcessed == 5 })

	recent := b.RecentEvents(0)
	if len(recent) != 3 {
		t.Fatalf("RecentEvents(0) returned %d events, want 3", len(recent))
	}

	if got := b.RecentEvents(1); len(got) != 1 {
		t.Errorf("RecentEvents(1) returned %d events", len(got))
	}
}

func TestBus_PauseResume(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.Start()
	b.Pause()

	b.Emit(NewEvent("t", nil, "src"))
	time.Sleep(20 * time.Millisecond)
	if sub.Count() != 0 {
		t.Error("paused bus delivered an event")
	}

	b.Resume()
	waitFor(t, time.Second, func() bool { return sub.Count() == 1 })
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return sub.Count() == 1 })

	b.Unsubscribe("t", sub)
	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return b.Statistics().EventsProcessed == 2 })
	if sub.Count() != 1 {
		t.Errorf("unsubscribed subscriber received %d events", sub.Count())
	}
}

func TestBus_StatisticsSurface(t *testing.T) {
	b := newTestBus(t, WithQueueSize(7))
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.AddFilter("f", NewFilter())
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return b.Statistics().EventsProcessed == 1 })

	stats := b.Statistics()
	if !stats.Running {
		t.Error("Running = false on a started bus")
	}
	if stats.QueueCapacity != 7 {
		t.Errorf("QueueCapacity = %d, want 7", stats.QueueCapacity)
	}
	if stats.TotalSubscribers != 1 {
		t.Errorf("TotalSubscribers = %d, want 1", stats.TotalSubscribers)
	}
	if stats.EventTypes != 1 {
		t.Errorf("EventTypes = %d, want 1", stats.EventTypes)
	}
	if stats.ActiveFilters != 1 {
		t.Errorf("ActiveFilters = %d, want 1", stats.ActiveFilters)
	}
	if stats.RecentEvents != 1 {
		t.Errorf("RecentEvents = %d, want 1", stats.RecentEvents)
	}
}

func TestBus_Performance(t *testing.T) {
	b := newTestBus(t)
	b.Start()

	b.Emit(NewEvent("t", nil, "src"))
	waitFor(t, time.Second, func() bool { return b.Statistics().EventsProcessed == 1 })

	perf := b.Performance()
	if perf.Uptime <= 0 {
		t.Errorf("Uptime = %v, want > 0", perf.Uptime)
	}
	if perf.EventsProcessed != 1 {
		t.Errorf("EventsProcessed = %d, want 1", perf.EventsProcessed)
	}
	if perf.EventsPerSecond <= 0 {
		t.Errorf("EventsPerSecond = %v, want > 0", perf.EventsPerSecond)
	}
}

func TestBus_Close(t *testing.T) {
	b := New(WithIdleInterval(2 * time.Millisecond))
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.Start()

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if b.IsRunning() {
		t.Error("bus running after Close()")
	}
	if got := b.Statistics().TotalSubscribers; got != 0 {
		t.Errorf("TotalSubscribers = %d after Close(), want 0", got)
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	b := newTestBus(t, WithQueueSize(10000))
	sub := newCollector("sub")
	b.Subscribe("t", sub)
	b.Start()

	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 50
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				b.Emit(NewEvent("t", nil, "src"))
			}
		}()
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool {
		return sub.Count() == producers*perProducer
	})
}
