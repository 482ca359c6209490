package config

import (
	"fmt"
	"os"
	"strconv"
)

// EventRetentionConfig holds configuration for activity feed retention
// and cleanup.
type EventRetentionConfig struct {
	// RetentionDays is the retention period for regular events (in days)
	// Events older than this are eligible for deletion
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// RetentionCriticalDays is the retention period for error/critical
	// events (in days). Kept longer for failure pattern analysis.
	// Must be >= RetentionDays
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `yaml:"retention_critical_days"`

	// PerWorkLimitEvents is the maximum number of events to keep per
	// work item. Oldest non-critical events are deleted first.
	// Set to 0 for unlimited
	// Default: 1000, Range: 0 or 100-10000
	PerWorkLimitEvents int `yaml:"per_work_limit_events"`

	// GlobalLimitEvents is the maximum total number of events to keep
	// Default: 100000, Range: 1000-1000000
	GlobalLimitEvents int `yaml:"global_limit_events"`

	// CleanupIntervalHours is how often to run cleanup (in hours)
	// Default: 24, Range: 1-168
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`

	// CleanupBatchSize is the number of events to delete per transaction
	// Larger batches = faster cleanup but longer locks
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupEnabled controls whether automatic cleanup runs
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

// DefaultEventRetentionConfig returns the default retention settings:
// a month of regular history, a quarter of error history, and caps that
// keep the feed table well under disk-relevant size.
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		PerWorkLimitEvents:    1000,
		GlobalLimitEvents:     100000,
		CleanupIntervalHours:  24,
		CleanupBatchSize:      1000,
		CleanupEnabled:        true,
	}
}

// Validate checks if the configuration has valid values.
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}
	if c.PerWorkLimitEvents < 0 {
		return fmt.Errorf("per_work_limit_events cannot be negative (got %d)", c.PerWorkLimitEvents)
	}
	if c.PerWorkLimitEvents > 0 && c.PerWorkLimitEvents < 100 {
		return fmt.Errorf("per_work_limit_events must be 0 (unlimited) or >= 100 (got %d)",
			c.PerWorkLimitEvents)
	}
	if c.PerWorkLimitEvents > 10000 {
		return fmt.Errorf("per_work_limit_events too large (got %d, max 10000)", c.PerWorkLimitEvents)
	}
	if c.GlobalLimitEvents < 1000 || c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events must be between 1000 and 1000000 (got %d)",
			c.GlobalLimitEvents)
	}
	if c.CleanupIntervalHours < 1 || c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours must be between 1 and 168 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupBatchSize < 100 || c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size must be between 100 and 10000 (got %d)",
			c.CleanupBatchSize)
	}
	return nil
}

// EventRetentionConfigFromEnv creates an EventRetentionConfig from
// environment variables, falling back to defaults.
//
// Environment variables:
//   - CURATOR_EVENT_RETENTION_DAYS
//   - CURATOR_EVENT_RETENTION_CRITICAL_DAYS
//   - CURATOR_EVENT_PER_WORK_LIMIT
//   - CURATOR_EVENT_GLOBAL_LIMIT
//   - CURATOR_EVENT_CLEANUP_INTERVAL_HOURS
//   - CURATOR_EVENT_CLEANUP_BATCH_SIZE
//   - CURATOR_EVENT_CLEANUP_ENABLED (true/false)
func EventRetentionConfigFromEnv() (EventRetentionConfig, error) {
	cfg := DefaultEventRetentionConfig()

	if err := parseEnvInt("CURATOR_EVENT_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_EVENT_RETENTION_CRITICAL_DAYS", &cfg.RetentionCriticalDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_EVENT_PER_WORK_LIMIT", &cfg.PerWorkLimitEvents); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_EVENT_GLOBAL_LIMIT", &cfg.GlobalLimitEvents); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_EVENT_CLEANUP_INTERVAL_HOURS", &cfg.CleanupIntervalHours); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_EVENT_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return cfg, err
	}
	if v := os.Getenv("CURATOR_EVENT_CLEANUP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CURATOR_EVENT_CLEANUP_ENABLED: %q", v)
		}
		cfg.CleanupEnabled = b
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseEnvInt parses an integer environment variable into dst if set.
func parseEnvInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not an integer", name, v)
	}
	*dst = n
	return nil
}
