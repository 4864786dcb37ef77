package scheduler

import (
	"time"
)

// Config controls how runs are scheduled across sources.
type Config struct {
	RunTimeout  time.Duration
	StartJitter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunTimeout:  45 * time.Minute,
		StartJitter: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.StartJitter < 0 {
		c.StartJitter = defaults.StartJitter
	}
	return c
}
