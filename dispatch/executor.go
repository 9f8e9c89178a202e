package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// Executor runs individual deliveries with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// Execute runs one delivery inline and returns its result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, event any, d Delivery) Result {
	select {
	case <-ctx.Done():
		return Result{ID: d.ID, Outcome: OutcomeSkipped, Err: ctx.Err()}
	default:
	}

	start := time.Now()
	outcome := e.run(ctx, event, d)
	outcome.Duration = time.Since(start)
	return outcome
}

// ExecuteWithTimeout runs one delivery bounded by the given timeout.
// The handler runs in its own goroutine: if it ignores context
// cancellation and hangs, the call still returns OutcomeTimeout after
// the deadline and the goroutine is abandoned. The result channel is
// buffered so an abandoned handler can finish without leaking a
// blocked goroutine.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, event any, d Delivery, timeout time.Duration) Result {
	if timeout <= 0 {
		return e.Execute(ctx, event, d)
	}

	select {
	case <-ctx.Done():
		return Result{ID: d.ID, Outcome: OutcomeSkipped, Err: ctx.Err()}
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- e.run(ctx, event, d)
	}()

	select {
	case res := <-done:
		res.Duration = time.Since(start)
		return res
	case <-ctx.Done():
		// A cancelled parent context is an abort, not a slow handler.
		outcome := OutcomeTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeSkipped
		}
		return Result{
			ID:       d.ID,
			Outcome:  outcome,
			Err:      ctx.Err(),
			Duration: time.Since(start),
		}
	}
}

// run invokes the handler with panic recovery. Duration is filled in
// by the caller.
func (e *Executor) run(ctx context.Context, event any, d Delivery) (result Result) {
	result.ID = d.ID

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Outcome = OutcomePanic
			result.PanicValue = r
			result.PanicStack = stack

			// The panic handler must not be able to crash the process.
			func() {
				defer func() { _ = recover() }()
				e.panicHandler(event, r, stack)
			}()
		}
	}()

	if err := d.Handler.Handle(ctx, event); err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	result.Outcome = OutcomeOK
	return result
}
