package scheduler

import (
	"time"
)

// Config controls the run loop. Batch sizing, worker counts, and
// timeouts live in the hot-reloadable policy instead.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	return c
}
