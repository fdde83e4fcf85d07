package bundles

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Queue name constants for the built-in job categories. Each category
// routes to an independently capacity-limited queue so one category's
// backlog does not starve another.
const (
	QueueEvents      = "events"
	QueueRecurring   = "recurring"
	QueueMaintenance = "maintenance"
)

// Config holds configuration for the bundle host.
type Config struct {
	// BundlesDir is the directory scanned for loadable bundle units.
	BundlesDir string `env:"BUNDLES_DIR" envDefault:"./bundles"`

	// PageSize is the page size used when fanning out over a bundle's
	// instances. Must be in [1, 1000].
	PageSize int `env:"BUNDLES_PAGE_SIZE" envDefault:"1000"`

	// InvocationTimeout bounds a single HandleEvent invocation.
	InvocationTimeout time.Duration `env:"BUNDLES_INVOCATION_TIMEOUT" envDefault:"30s"`

	// TickInterval is how often the scheduler checks for due entries.
	TickInterval time.Duration `env:"BUNDLES_TICK_INTERVAL" envDefault:"1s"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `env:"BUNDLES_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BundlesDir:        "./bundles",
		PageSize:          1000,
		InvocationTimeout: 30 * time.Second,
		TickInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from BUNDLES_* environment variables,
// falling back to the defaults for unset keys.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("bundles: parse config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("%w: page size %d outside [1, 1000]", ErrInvalidPage, c.PageSize)
	}
	if c.InvocationTimeout <= 0 {
		return fmt.Errorf("bundles: invocation timeout must be positive, got %s", c.InvocationTimeout)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("bundles: tick interval must be positive, got %s", c.TickInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("bundles: shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
