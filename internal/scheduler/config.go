package scheduler

import "time"

// Config controls job cadence and batch sizes.
type Config struct {
	PeriodResetInterval  time.Duration
	NonceCleanupInterval time.Duration
	JobTimeout           time.Duration
	LockTTL              time.Duration
	BatchSize            int
	NonceCleanupAfter    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PeriodResetInterval:  24 * time.Hour,
		NonceCleanupInterval: time.Hour,
		JobTimeout:           5 * time.Minute,
		LockTTL:              10 * time.Minute,
		BatchSize:            500,
		NonceCleanupAfter:    24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PeriodResetInterval <= 0 {
		c.PeriodResetInterval = defaults.PeriodResetInterval
	}
	if c.NonceCleanupInterval <= 0 {
		c.NonceCleanupInterval = defaults.NonceCleanupInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.NonceCleanupAfter <= 0 {
		c.NonceCleanupAfter = defaults.NonceCleanupAfter
	}
	return c
}
