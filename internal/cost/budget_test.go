package cost

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage/sqlite"
)

func newTestTracker(t *testing.T, cfg *Config) (*Tracker, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker, err := NewTracker(cfg, store)
	require.NoError(t, err)
	return tracker, store
}

func recordUsage(t *testing.T, store *sqlite.SQLiteStorage, workID, model string, in, out int64) {
	t.Helper()
	e, err := events.NewAIUsage(workID, "worker-1", "creator", events.AIUsageData{
		Model:        model,
		Operation:    "test",
		InputTokens:  in,
		OutputTokens: out,
	})
	require.NoError(t, err)
	require.NoError(t, store.StoreEvent(context.Background(), e))
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Nanosecond // always re-read in tests
	return cfg
}

func TestCanProceedUnderBudget(t *testing.T) {
	tracker, store := newTestTracker(t, testConfig())
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 1000, 500)

	ok, reason := tracker.CanProceed(context.Background())
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, BudgetHealthy, tracker.Status(context.Background()))
}

func TestCanProceedHourlyTokenLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokensPerHour = 1000
	tracker, store := newTestTracker(t, cfg)
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 800, 300)

	ok, reason := tracker.CanProceed(context.Background())
	assert.False(t, ok)
	assert.Contains(t, reason, "hourly token budget exceeded")
	assert.Equal(t, BudgetExceeded, tracker.Status(context.Background()))
}

func TestCanProceedDailyCostLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokensPerHour = 0 // isolate the cost limit
	cfg.MaxCostPerDay = 0.01
	tracker, store := newTestTracker(t, cfg)
	// 1M input tokens at $3/MTok is well past one cent.
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 1_000_000, 0)

	ok, reason := tracker.CanProceed(context.Background())
	assert.False(t, ok)
	assert.Contains(t, reason, "daily cost budget exceeded")
}

func TestCanProceedForWorkCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokensPerWork = 1000
	tracker, store := newTestTracker(t, cfg)
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 900, 200)
	recordUsage(t, store, "1#2", "claude-sonnet-4-5", 100, 100)

	ok, reason := tracker.CanProceedForWork(context.Background(), "1#1")
	assert.False(t, ok)
	assert.Contains(t, reason, "1#1")

	ok, _ = tracker.CanProceedForWork(context.Background(), "1#2")
	assert.True(t, ok)
}

func TestWarningThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokensPerHour = 1000
	cfg.AlertThreshold = 0.5
	tracker, store := newTestTracker(t, cfg)
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 400, 200)

	ok, _ := tracker.CanProceed(context.Background())
	assert.True(t, ok, "warning does not block calls")
	assert.Equal(t, BudgetWarning, tracker.Status(context.Background()))
}

func TestDisabledTrackerAlwaysAllows(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	cfg.MaxTokensPerHour = 1
	tracker, store := newTestTracker(t, cfg)
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 50_000, 50_000)

	ok, _ := tracker.CanProceed(context.Background())
	assert.True(t, ok)
	assert.Equal(t, BudgetHealthy, tracker.Status(context.Background()))
}

func TestGetStatsPricing(t *testing.T) {
	tracker, store := newTestTracker(t, testConfig())
	recordUsage(t, store, "1#1", "claude-sonnet-4-5", 1_000_000, 0)      // $3.00
	recordUsage(t, store, "1#2", "claude-3-5-haiku-20241022", 0, 1_000_000) // $4.00

	stats, err := tracker.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), stats.DayTokens)
	assert.InDelta(t, 7.00, stats.DayCost, 0.001)
	assert.Equal(t, 2, stats.ActiveWork)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.AlertThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxCostPerDay = -1
	assert.Error(t, cfg.Validate())
}
