package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, 30, cfg.Swarm.PollIntervalSeconds)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEventRetentionConfig(), cfg.EventRetention)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  backend: sqlite
  path: /tmp/test-curator.db
swarm:
  poll_interval_seconds: 10
tracker:
  base_url: https://gitlab.example.com
  requests_per_second: 2
`), 0o644))

	t.Setenv("CURATOR_DB", "/tmp/override.db")
	t.Setenv("CURATOR_TRACKER_TOKEN", "glpat-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path, "env beats file")
	assert.Equal(t, 10, cfg.Swarm.PollIntervalSeconds)
	assert.Equal(t, "glpat-test", cfg.Tracker.Token)
	assert.Equal(t, 2.0, cfg.Tracker.RequestsPerSecond)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Database.Backend = "mongodb"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Backend = "postgres"
	assert.Error(t, cfg.Validate(), "postgres without DSN")
	cfg.Database.DSN = "postgres://localhost/curator"
	assert.NoError(t, cfg.Validate())
}

func TestValidateStaleThreshold(t *testing.T) {
	cfg := Default()
	cfg.Swarm.HeartbeatSeconds = 30
	cfg.Swarm.StaleThresholdSeconds = 45 // less than 2x heartbeat
	assert.Error(t, cfg.Validate())
}

func TestEventRetentionValidation(t *testing.T) {
	cfg := DefaultEventRetentionConfig()
	require.NoError(t, cfg.Validate())

	cfg.RetentionCriticalDays = cfg.RetentionDays - 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultEventRetentionConfig()
	cfg.PerWorkLimitEvents = 50 // below minimum, not zero
	assert.Error(t, cfg.Validate())

	cfg.PerWorkLimitEvents = 0 // unlimited is allowed
	assert.NoError(t, cfg.Validate())
}

func TestEventRetentionFromEnv(t *testing.T) {
	t.Setenv("CURATOR_EVENT_RETENTION_DAYS", "7")
	t.Setenv("CURATOR_EVENT_CLEANUP_ENABLED", "false")

	cfg, err := EventRetentionConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.False(t, cfg.CleanupEnabled)

	t.Setenv("CURATOR_EVENT_RETENTION_DAYS", "not-a-number")
	_, err = EventRetentionConfigFromEnv()
	assert.Error(t, err)
}

func TestInstanceCleanupFromEnv(t *testing.T) {
	t.Setenv("CURATOR_INSTANCE_CLEANUP_AGE_HOURS", "48")
	t.Setenv("CURATOR_INSTANCE_CLEANUP_KEEP", "5")

	cfg, err := InstanceCleanupConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.CleanupAgeHours)
	assert.Equal(t, 5, cfg.CleanupKeep)

	t.Setenv("CURATOR_INSTANCE_CLEANUP_AGE_HOURS", "10000")
	_, err = InstanceCleanupConfigFromEnv()
	assert.Error(t, err)
}
