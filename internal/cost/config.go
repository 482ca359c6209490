package cost

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ModelPricing is the per-million-token price for one model.
type ModelPricing struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// Config holds budget limits and pricing.
type Config struct {
	// Enabled controls whether budget enforcement is active.
	Enabled bool `json:"enabled"`

	// MaxTokensPerHour caps total tokens (input + output) across the
	// swarm in any rolling hour. 0 = unlimited.
	MaxTokensPerHour int64 `json:"max_tokens_per_hour"`

	// MaxTokensPerWork caps tokens spent on a single work item over
	// the tracking window. 0 = unlimited.
	MaxTokensPerWork int64 `json:"max_tokens_per_work"`

	// MaxCostPerDay caps USD spend in any rolling 24 hours.
	// 0 = unlimited.
	MaxCostPerDay float64 `json:"max_cost_per_day"`

	// AlertThreshold is the budget fraction that moves status from
	// HEALTHY to WARNING.
	AlertThreshold float64 `json:"alert_threshold"`

	// RefreshInterval is how stale the cached usage numbers may get
	// before a budget check re-reads usage events from storage.
	RefreshInterval time.Duration `json:"refresh_interval"`

	// Pricing maps model name to per-MTok prices. Unknown models fall
	// back to DefaultPricing.
	Pricing map[string]ModelPricing `json:"pricing"`

	// DefaultPricing is used for models absent from Pricing.
	DefaultPricing ModelPricing `json:"default_pricing"`
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		MaxTokensPerHour: 200_000,
		MaxTokensPerWork: 50_000,
		MaxCostPerDay:    25.00,
		AlertThreshold:   0.80,
		RefreshInterval:  30 * time.Second,
		Pricing: map[string]ModelPricing{
			"claude-sonnet-4-5":         {InputPerMTok: 3.00, OutputPerMTok: 15.00},
			"claude-3-5-haiku-20241022": {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		},
		DefaultPricing: ModelPricing{InputPerMTok: 3.00, OutputPerMTok: 15.00},
	}
}

// LoadFromEnv builds a Config from defaults plus CURATOR_COST_*
// environment overrides. Invalid individual values are ignored; an
// invalid final config falls back to defaults with a warning.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if val := os.Getenv("CURATOR_COST_ENABLED"); val != "" {
		cfg.Enabled = parseBool(val)
	}
	if val := os.Getenv("CURATOR_COST_MAX_TOKENS_PER_HOUR"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			cfg.MaxTokensPerHour = n
		}
	}
	if val := os.Getenv("CURATOR_COST_MAX_TOKENS_PER_WORK"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			cfg.MaxTokensPerWork = n
		}
	}
	if val := os.Getenv("CURATOR_COST_MAX_COST_PER_DAY"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			cfg.MaxCostPerDay = f
		}
	}
	if val := os.Getenv("CURATOR_COST_ALERT_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 && f <= 1.0 {
			cfg.AlertThreshold = f
		}
	}
	if val := os.Getenv("CURATOR_COST_REFRESH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.RefreshInterval = d
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid cost config from environment: %v (using defaults)\n", err)
		return DefaultConfig()
	}
	return cfg
}

// Validate checks the configuration for safe values.
func (c *Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxTokensPerWork < 0 {
		return fmt.Errorf("max_tokens_per_work must be non-negative, got %d", c.MaxTokensPerWork)
	}
	if c.MaxCostPerDay < 0 {
		return fmt.Errorf("max_cost_per_day must be non-negative, got %.2f", c.MaxCostPerDay)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %v", c.RefreshInterval)
	}
	return nil
}

// PriceFor returns the pricing for a model, falling back to
// DefaultPricing for models not in the table.
func (c *Config) PriceFor(model string) ModelPricing {
	if p, ok := c.Pricing[model]; ok {
		return p
	}
	return c.DefaultPricing
}

func parseBool(val string) bool {
	switch val {
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
