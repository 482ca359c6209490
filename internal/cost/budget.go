package cost

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
)

// BudgetStatus is the current budget state.
type BudgetStatus int

const (
	// BudgetHealthy means usage is comfortably under every limit.
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning means usage has crossed the alert threshold.
	BudgetWarning
	// BudgetExceeded means at least one hard limit is exhausted.
	BudgetExceeded
)

func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// usage is the aggregated spend computed from ai_usage events.
type usage struct {
	hourTokens int64
	dayTokens  int64
	dayCost    float64
	workTokens map[string]int64
	refreshed  time.Time
}

// Tracker enforces spend limits. The database is the source of truth:
// every model call is recorded as an ai_usage event by the caller, and
// the tracker periodically re-aggregates those events rather than
// keeping its own counter file. Restart recovery comes for free, and
// every instance in the swarm sees the same numbers.
type Tracker struct {
	config *Config
	store  storage.Storage

	mu    sync.Mutex
	cache usage

	lastWarning  time.Time
	lastExceeded time.Time
}

// NewTracker creates a budget tracker over the given storage.
func NewTracker(cfg *Config, store storage.Storage) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Tracker{config: cfg, store: store}, nil
}

// CanProceed reports whether another model call fits the budget.
// Satisfies the AI supervisor's budget gate.
func (t *Tracker) CanProceed(ctx context.Context) (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refreshLocked(ctx); err != nil {
		// Fail open on storage trouble: halting every agent because the
		// usage query failed is worse than briefly exceeding budget.
		fmt.Fprintf(os.Stderr, "warning: budget refresh failed, allowing call: %v\n", err)
		return true, ""
	}

	if t.config.MaxTokensPerHour > 0 && t.cache.hourTokens >= t.config.MaxTokensPerHour {
		reason := fmt.Sprintf("hourly token budget exceeded (%d/%d tokens)",
			t.cache.hourTokens, t.config.MaxTokensPerHour)
		t.noteExceededLocked(reason)
		return false, reason
	}
	if t.config.MaxCostPerDay > 0 && t.cache.dayCost >= t.config.MaxCostPerDay {
		reason := fmt.Sprintf("daily cost budget exceeded ($%.2f/$%.2f)",
			t.cache.dayCost, t.config.MaxCostPerDay)
		t.noteExceededLocked(reason)
		return false, reason
	}

	if t.statusLocked() == BudgetWarning {
		t.noteWarningLocked()
	}
	return true, ""
}

// CanProceedForWork additionally checks the per-work-item token cap.
func (t *Tracker) CanProceedForWork(ctx context.Context, workID string) (bool, string) {
	ok, reason := t.CanProceed(ctx)
	if !ok {
		return false, reason
	}
	if !t.config.Enabled || t.config.MaxTokensPerWork <= 0 || workID == "" {
		return true, ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if used := t.cache.workTokens[workID]; used >= t.config.MaxTokensPerWork {
		return false, fmt.Sprintf("token budget for work item %s exceeded (%d/%d tokens)",
			workID, used, t.config.MaxTokensPerWork)
	}
	return true, ""
}

// Status returns the current budget status.
func (t *Tracker) Status(ctx context.Context) BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return BudgetHealthy
	}
	return t.statusLocked()
}

// BudgetStats is a snapshot of current spend for status displays.
type BudgetStats struct {
	Status      BudgetStatus `json:"status"`
	HourTokens  int64        `json:"hour_tokens"`
	DayTokens   int64        `json:"day_tokens"`
	DayCost     float64      `json:"day_cost"`
	ActiveWork  int          `json:"active_work"`
	RefreshedAt time.Time    `json:"refreshed_at"`
	Config      Config       `json:"config"`
}

// GetStats returns current spend aggregates.
func (t *Tracker) GetStats(ctx context.Context) (*BudgetStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return &BudgetStats{
		Status:      t.statusLocked(),
		HourTokens:  t.cache.hourTokens,
		DayTokens:   t.cache.dayTokens,
		DayCost:     t.cache.dayCost,
		ActiveWork:  len(t.cache.workTokens),
		RefreshedAt: t.cache.refreshed,
		Config:      *t.config,
	}, nil
}

// refreshLocked re-aggregates ai_usage events from the last 24 hours
// when the cache is older than RefreshInterval. Caller holds mu.
func (t *Tracker) refreshLocked(ctx context.Context) error {
	now := time.Now()
	if now.Sub(t.cache.refreshed) < t.config.RefreshInterval {
		return nil
	}

	evs, err := t.store.GetEvents(ctx, events.Filter{
		Types: []events.EventType{events.EventTypeAIUsage},
		Since: now.Add(-24 * time.Hour),
		Limit: 50_000,
	})
	if err != nil {
		return fmt.Errorf("failed to load usage events: %w", err)
	}

	fresh := usage{workTokens: make(map[string]int64), refreshed: now}
	hourAgo := now.Add(-time.Hour)
	for _, e := range evs {
		data, err := e.GetAIUsageData()
		if err != nil {
			continue
		}
		tokens := data.InputTokens + data.OutputTokens
		price := t.config.PriceFor(data.Model)

		fresh.dayTokens += tokens
		fresh.dayCost += float64(data.InputTokens)*price.InputPerMTok/1_000_000 +
			float64(data.OutputTokens)*price.OutputPerMTok/1_000_000
		if e.Timestamp.After(hourAgo) {
			fresh.hourTokens += tokens
		}
		if e.WorkID != "" {
			fresh.workTokens[e.WorkID] += tokens
		}
	}

	t.cache = fresh
	return nil
}

// statusLocked derives the status from cached usage. Caller holds mu.
func (t *Tracker) statusLocked() BudgetStatus {
	if (t.config.MaxTokensPerHour > 0 && t.cache.hourTokens >= t.config.MaxTokensPerHour) ||
		(t.config.MaxCostPerDay > 0 && t.cache.dayCost >= t.config.MaxCostPerDay) {
		return BudgetExceeded
	}

	if t.config.MaxTokensPerHour > 0 {
		if float64(t.cache.hourTokens)/float64(t.config.MaxTokensPerHour) >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}
	if t.config.MaxCostPerDay > 0 {
		if t.cache.dayCost/t.config.MaxCostPerDay >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}
	return BudgetHealthy
}

// Alert prints are throttled so a saturated swarm does not flood the
// log with one line per refused call.
const alertThrottle = 5 * time.Minute

func (t *Tracker) noteWarningLocked() {
	now := time.Now()
	if now.Sub(t.lastWarning) < alertThrottle {
		return
	}
	t.lastWarning = now
	fmt.Fprintf(os.Stderr, "warning: AI budget at %d tokens this hour, $%.2f today (threshold %.0f%%)\n",
		t.cache.hourTokens, t.cache.dayCost, t.config.AlertThreshold*100)
}

func (t *Tracker) noteExceededLocked(reason string) {
	now := time.Now()
	if now.Sub(t.lastExceeded) < alertThrottle {
		return
	}
	t.lastExceeded = now
	fmt.Fprintf(os.Stderr, "AI budget exceeded, refusing new model calls: %s\n", reason)
}
