// Package config loads curator configuration from a YAML file plus
// CURATOR_* environment overrides. A .env file, if present, is loaded
// before environment lookup so local setups stay out of shell profiles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full curator configuration.
type Config struct {
	// Database selects the storage backend.
	Database DatabaseConfig `yaml:"database"`

	// Tracker configures the issue tracker connection.
	Tracker TrackerConfig `yaml:"tracker"`

	// AI configures model selection.
	AI AIConfig `yaml:"ai"`

	// Swarm configures the autonomous worker.
	Swarm SwarmConfig `yaml:"swarm"`

	// EventRetention controls activity feed cleanup.
	EventRetention EventRetentionConfig `yaml:"event_retention"`

	// InstanceCleanup controls pruning of old stopped worker instances.
	InstanceCleanup InstanceCleanupConfig `yaml:"instance_cleanup"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// TrackerConfig configures the GitLab-style tracker client.
type TrackerConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// RequestsPerSecond throttles outbound API calls. Default 5.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// AIConfig configures model selection. Empty fields fall back to the
// built-in defaults (env overrides still apply).
type AIConfig struct {
	Model           string `yaml:"model"`
	SimpleTaskModel string `yaml:"simple_task_model"`
	// DailyBudgetUSD caps daily model spend. 0 = unlimited.
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`
}

// SwarmConfig configures the autonomous worker loops.
type SwarmConfig struct {
	// PollIntervalSeconds is the ready-work poll cadence. Default 30.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// HeartbeatSeconds is the instance heartbeat cadence. Default 30.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	// StaleThresholdSeconds is how long without a heartbeat before an
	// instance is considered dead. Default 300.
	StaleThresholdSeconds int `yaml:"stale_threshold_seconds"`
	// IdleCyclesBeforeBackoff is how many empty polls before the poll
	// interval is extended. Default 5.
	IdleCyclesBeforeBackoff int `yaml:"idle_cycles_before_backoff"`
	// IdleBackoffMultiplier extends the poll interval when idle. Default 3.
	IdleBackoffMultiplier int `yaml:"idle_backoff_multiplier"`
	// Roles restricts which agents this worker runs. Empty = all.
	Roles []string `yaml:"roles"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Backend: "sqlite", Path: defaultDBPath()},
		Tracker:  TrackerConfig{RequestsPerSecond: 5},
		Swarm: SwarmConfig{
			PollIntervalSeconds:     30,
			HeartbeatSeconds:        30,
			StaleThresholdSeconds:   300,
			IdleCyclesBeforeBackoff: 5,
			IdleBackoffMultiplier:   3,
		},
		EventRetention:  DefaultEventRetentionConfig(),
		InstanceCleanup: DefaultInstanceCleanupConfig(),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "curator.db"
	}
	return filepath.Join(home, ".curator", "curator.db")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "curator.yaml"
	}
	return filepath.Join(home, ".config", "curator", "config.yaml")
}

// Load reads the config file at path (missing file is not an error),
// then applies environment overrides. Pass "" for the default path.
func Load(path string) (Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CURATOR_DB_BACKEND"); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv("CURATOR_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CURATOR_PG_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CURATOR_TRACKER_URL"); v != "" {
		c.Tracker.BaseURL = v
	}
	if v := os.Getenv("CURATOR_TRACKER_TOKEN"); v != "" {
		c.Tracker.Token = v
	}
	if v := os.Getenv("CURATOR_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("CURATOR_SIMPLE_MODEL"); v != "" {
		c.AI.SimpleTaskModel = v
	}
	if v := os.Getenv("CURATOR_DAILY_BUDGET_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AI.DailyBudgetUSD = f
		}
	}
	if v := os.Getenv("CURATOR_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Swarm.PollIntervalSeconds = n
		}
	}
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite backend requires database.path")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("postgres backend requires database.dsn")
		}
	default:
		return fmt.Errorf("unknown database backend: %q (want sqlite or postgres)", c.Database.Backend)
	}
	if c.Swarm.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1 (got %d)", c.Swarm.PollIntervalSeconds)
	}
	if c.Swarm.HeartbeatSeconds < 1 {
		return fmt.Errorf("heartbeat_seconds must be at least 1 (got %d)", c.Swarm.HeartbeatSeconds)
	}
	if c.Swarm.StaleThresholdSeconds < c.Swarm.HeartbeatSeconds*2 {
		return fmt.Errorf("stale_threshold_seconds (%d) must be at least twice heartbeat_seconds (%d)",
			c.Swarm.StaleThresholdSeconds, c.Swarm.HeartbeatSeconds)
	}
	if c.Swarm.IdleBackoffMultiplier < 1 {
		return fmt.Errorf("idle_backoff_multiplier must be at least 1 (got %d)", c.Swarm.IdleBackoffMultiplier)
	}
	if c.Tracker.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive (got %v)", c.Tracker.RequestsPerSecond)
	}
	if err := c.EventRetention.Validate(); err != nil {
		return err
	}
	return c.InstanceCleanup.Validate()
}

// PollInterval returns the swarm poll cadence as a duration.
func (c *SwarmConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Heartbeat returns the heartbeat cadence as a duration.
func (c *SwarmConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// StaleThreshold returns the dead-instance threshold as a duration.
func (c *SwarmConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSeconds) * time.Second
}
