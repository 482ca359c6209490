package config

import (
	"fmt"
	"time"
)

// InstanceCleanupConfig holds configuration for pruning old stopped
// worker instances from the store.
type InstanceCleanupConfig struct {
	// CleanupAgeHours is how old stopped instances must be before deletion
	// Default: 24, Range: 0-720 (0 = disable cleanup)
	CleanupAgeHours int `yaml:"cleanup_age_hours"`

	// CleanupKeep is the minimum number of stopped instances to keep
	// as historical record regardless of age
	// Default: 10, Range: 0-1000
	CleanupKeep int `yaml:"cleanup_keep"`
}

// DefaultInstanceCleanupConfig keeps a day of stopped instances and
// never prunes below ten records.
func DefaultInstanceCleanupConfig() InstanceCleanupConfig {
	return InstanceCleanupConfig{
		CleanupAgeHours: 24,
		CleanupKeep:     10,
	}
}

// Validate checks if the configuration has valid values.
func (c InstanceCleanupConfig) Validate() error {
	if c.CleanupAgeHours < 0 || c.CleanupAgeHours > 720 {
		return fmt.Errorf("cleanup_age_hours must be between 0 and 720 (got %d)", c.CleanupAgeHours)
	}
	if c.CleanupKeep < 0 || c.CleanupKeep > 1000 {
		return fmt.Errorf("cleanup_keep must be between 0 and 1000 (got %d)", c.CleanupKeep)
	}
	return nil
}

// CleanupAge returns the age threshold as a time.Duration.
func (c InstanceCleanupConfig) CleanupAge() time.Duration {
	return time.Duration(c.CleanupAgeHours) * time.Hour
}

// InstanceCleanupConfigFromEnv creates an InstanceCleanupConfig from
// environment variables, falling back to defaults.
//
// Environment variables:
//   - CURATOR_INSTANCE_CLEANUP_AGE_HOURS
//   - CURATOR_INSTANCE_CLEANUP_KEEP
func InstanceCleanupConfigFromEnv() (InstanceCleanupConfig, error) {
	cfg := DefaultInstanceCleanupConfig()

	if err := parseEnvInt("CURATOR_INSTANCE_CLEANUP_AGE_HOURS", &cfg.CleanupAgeHours); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CURATOR_INSTANCE_CLEANUP_KEEP", &cfg.CleanupKeep); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
