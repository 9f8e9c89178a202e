package pulsebus

import (
	"time"

	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	// DefaultQueueSize is the bounded queue capacity.
	DefaultQueueSize = 1000

	// DefaultHistorySize is the recent-events ring capacity.
	DefaultHistorySize = 100

	// DefaultIdleInterval is how long the dispatch loop waits when the
	// queue is empty before re-checking.
	DefaultIdleInterval = 10 * time.Millisecond

	// DefaultDeliveryTimeout bounds each subscriber delivery.
	DefaultDeliveryTimeout = 5 * time.Second

	// DefaultPersistThreshold is the minimum priority durably recorded
	// when persistence is enabled.
	DefaultPersistThreshold = 9

	// DefaultReplayWindow is the maximum record age replayed at startup.
	DefaultReplayWindow = time.Hour
)

// Option configures a Bus.
type Option func(*busConfig)

// busConfig contains configuration for the bus.
type busConfig struct {
	// queueSize is the bounded queue capacity.
	queueSize int

	// historySize is the recent-events ring capacity.
	historySize int

	// idleInterval is the dispatch loop's empty-queue wait.
	idleInterval time.Duration

	// deliveryTimeout bounds each subscriber delivery.
	deliveryTimeout time.Duration

	// persistDir enables persistence when non-empty.
	persistDir string

	// persistThreshold is the minimum priority durably recorded.
	persistThreshold int

	// replayWindow is the maximum record age replayed at startup.
	replayWindow time.Duration

	// logger receives drop warnings, delivery failures, and
	// persistence failures.
	logger zerolog.Logger
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		queueSize:        DefaultQueueSize,
		historySize:      DefaultHistorySize,
		idleInterval:     DefaultIdleInterval,
		deliveryTimeout:  DefaultDeliveryTimeout,
		persistThreshold: DefaultPersistThreshold,
		replayWindow:     DefaultReplayWindow,
		logger:           zerolog.Nop(),
	}
}

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(size int) Option {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithHistorySize sets the recent-events ring capacity.
func WithHistorySize(size int) Option {
	return func(c *busConfig) {
		if size > 0 {
			c.historySize = size
		}
	}
}

// WithIdleInterval sets the dispatch loop's empty-queue wait.
func WithIdleInterval(d time.Duration) Option {
	return func(c *busConfig) {
		if d > 0 {
			c.idleInterval = d
		}
	}
}

// WithDeliveryTimeout sets the per-subscriber delivery timeout.
// A non-positive timeout disables the bound.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(c *busConfig) {
		c.deliveryTimeout = d
	}
}

// WithPersistence enables durable recording of critical events under
// the given directory.
func WithPersistence(dir string) Option {
	return func(c *busConfig) {
		c.persistDir = dir
	}
}

// WithPersistThreshold sets the minimum priority durably recorded.
func WithPersistThreshold(priority int) Option {
	return func(c *busConfig) {
		c.persistThreshold = clampPriority(priority)
	}
}

// WithReplayWindow sets the maximum record age replayed at startup.
func WithReplayWindow(d time.Duration) Option {
	return func(c *busConfig) {
		if d > 0 {
			c.replayWindow = d
		}
	}
}

// WithLogger sets the logger the bus reports to. The default discards
// everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *busConfig) {
		c.logger = log
	}
}
