package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Fanout delivers one event to many recipients concurrently, each
// delivery independently bounded by the configured timeout. One
// recipient's failure, panic, or hang never affects another delivery.
type Fanout struct {
	executor *Executor
	timeout  time.Duration

	// Stats
	delivered   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	timedOut    atomic.Uint64
	panicked    atomic.Uint64
	totalTimeNs atomic.Int64
}

// NewFanout creates a fan-out dispatcher.
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{
		executor: NewExecutor(),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithTimeout sets the per-delivery timeout. A non-positive timeout
// disables the bound.
func WithTimeout(timeout time.Duration) FanoutOption {
	return func(f *Fanout) {
		f.timeout = timeout
	}
}

// WithPanicHandler sets the panic handler used for every delivery.
func WithPanicHandler(h PanicHandler) FanoutOption {
	return func(f *Fanout) {
		f.executor = NewExecutor(WithExecutorPanicHandler(h))
	}
}

// Dispatch delivers the event to every recipient concurrently and
// blocks until each delivery completes or times out. Results are
// returned in recipient order.
func (f *Fanout) Dispatch(ctx context.Context, event any, deliveries []Delivery) []Result {
	results := make([]Result, len(deliveries))
	if len(deliveries) == 0 {
		return results
	}

	var wg sync.WaitGroup
	for i, d := range deliveries {
		wg.Add(1)
		go func(i int, d Delivery) {
			defer wg.Done()
			results[i] = f.executor.ExecuteWithTimeout(ctx, event, d, f.timeout)
		}(i, d)
	}
	wg.Wait()

	for _, res := range results {
		f.record(res)
	}
	return results
}

// record updates fan-out statistics for one result.
func (f *Fanout) record(res Result) {
	f.delivered.Add(1)
	f.totalTimeNs.Add(res.Duration.Nanoseconds())

	switch res.Outcome {
	case OutcomeOK:
		f.succeeded.Add(1)
	case OutcomeError:
		f.failed.Add(1)
	case OutcomeTimeout:
		f.timedOut.Add(1)
	case OutcomePanic:
		f.panicked.Add(1)
	}
}

// Stats returns cumulative fan-out statistics.
func (f *Fanout) Stats() FanoutStats {
	delivered := f.delivered.Load()
	totalNs := f.totalTimeNs.Load()

	var avgNs int64
	if delivered > 0 {
		avgNs = totalNs / int64(delivered)
	}

	return FanoutStats{
		Delivered:     delivered,
		Succeeded:     f.succeeded.Load(),
		Failed:        f.failed.Load(),
		TimedOut:      f.timedOut.Load(),
		Panicked:      f.panicked.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// ResetStats resets all statistics to zero.
func (f *Fanout) ResetStats() {
	f.delivered.Store(0)
	f.succeeded.Store(0)
	f.failed.Store(0)
	f.timedOut.Store(0)
	f.panicked.Store(0)
	f.totalTimeNs.Store(0)
}

// FanoutStats contains statistics for a fan-out dispatcher.
type FanoutStats struct {
	// Delivered is the total number of individual deliveries attempted.
	Delivered uint64

	// Succeeded is the number of deliveries that completed cleanly.
	Succeeded uint64

	// Failed is the number of handlers that returned errors.
	Failed uint64

	// TimedOut is the number of deliveries that exceeded the timeout.
	TimedOut uint64

	// Panicked is the number of handlers that panicked.
	Panicked uint64

	// TotalDuration is the cumulative observed delivery time.
	TotalDuration time.Duration

	// AvgDuration is the average observed delivery time.
	AvgDuration time.Duration
}
