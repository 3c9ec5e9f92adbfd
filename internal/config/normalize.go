package config

import (
	"strings"
	"time"
)

const (
	defaultReapInterval       = 30 * time.Second
	defaultBreakerMaxRequests = 1
	defaultBreakerInterval    = 10 * time.Second
	defaultBreakerTimeout     = 5 * time.Second
)

// Normalize applies defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	c := &cfg.Client
	if c.MaxChannelsPerPV == 0 {
		c.MaxChannelsPerPV = 1
	}
	c.Pool = strings.ToLower(c.Pool)
	if c.Pool == "" {
		c.Pool = "puddle"
	}
	// Lifetime and idle limits are enforced by the reaper.
	if c.ReapInterval == 0 && (c.MaxChannelLifetime > 0 || c.MaxChannelIdleTime > 0) {
		c.ReapInterval = defaultReapInterval
	}
	if b := c.Breaker; b != nil {
		if b.MaxRequests == 0 {
			b.MaxRequests = defaultBreakerMaxRequests
		}
		if b.Interval == 0 {
			b.Interval = defaultBreakerInterval
		}
		if b.Timeout == 0 {
			b.Timeout = defaultBreakerTimeout
		}
	}

	for i := range cfg.PVs {
		cfg.PVs[i].Type = strings.ToLower(cfg.PVs[i].Type)
	}
}
