package pulsebus

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the bus configuration. Durations are
// strings in time.ParseDuration syntax ("10ms", "5s", "1h"). Zero
// values fall back to the defaults.
type Config struct {
	// MaxQueueSize is the bounded queue capacity.
	MaxQueueSize int `yaml:"max_queue_size"`

	// HistorySize is the recent-events ring capacity.
	HistorySize int `yaml:"history_size"`

	// IdleInterval is the dispatch loop's empty-queue wait.
	IdleInterval string `yaml:"idle_interval"`

	// DeliveryTimeout bounds each subscriber delivery.
	DeliveryTimeout string `yaml:"delivery_timeout"`

	// PersistenceDir enables persistence when non-empty.
	PersistenceDir string `yaml:"persistence_dir"`

	// PersistThreshold is the minimum priority durably recorded.
	PersistThreshold int `yaml:"persist_threshold"`

	// ReplayWindow is the maximum record age replayed at startup.
	ReplayWindow string `yaml:"replay_window"`
}

// LoadConfig reads a YAML bus configuration from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the config into bus options. Unset fields produce
// no option, leaving the defaults in place.
func (c Config) Options() ([]Option, error) {
	var opts []Option

	if c.MaxQueueSize > 0 {
		opts = append(opts, WithQueueSize(c.MaxQueueSize))
	}
	if c.HistorySize > 0 {
		opts = append(opts, WithHistorySize(c.HistorySize))
	}
	if c.IdleInterval != "" {
		d, err := time.ParseDuration(c.IdleInterval)
		if err != nil {
			return nil, fmt.Errorf("config: idle_interval: %w", err)
		}
		opts = append(opts, WithIdleInterval(d))
	}
	if c.DeliveryTimeout != "" {
		d, err := time.ParseDuration(c.DeliveryTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: delivery_timeout: %w", err)
		}
		opts = append(opts, WithDeliveryTimeout(d))
	}
	if c.PersistenceDir != "" {
		opts = append(opts, WithPersistence(c.PersistenceDir))
	}
	if c.PersistThreshold > 0 {
		opts = append(opts, WithPersistThreshold(c.PersistThreshold))
	}
	if c.ReplayWindow != "" {
		d, err := time.ParseDuration(c.ReplayWindow)
		if err != nil {
			return nil, fmt.Errorf("config: replay_window: %w", err)
		}
		opts = append(opts, WithReplayWindow(d))
	}

	return opts, nil
}
