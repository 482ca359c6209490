// Package swarm runs the autonomous worker: the poll/claim/execute
// loop plus the maintenance goroutines that keep the swarm healthy.
package swarm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curateops/curator/internal/agents"
	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/control"
	"github.com/curateops/curator/internal/cost"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// Config holds worker configuration. Store is required; Tracker, AI,
// and Budget may be nil, in which case the worker runs degraded.
type Config struct {
	Store   storage.Storage
	Tracker *tracker.Client
	AI      *ai.Supervisor
	Budget  *cost.Tracker
	Version string

	Swarm           config.SwarmConfig
	EventRetention  config.EventRetentionConfig
	InstanceCleanup config.InstanceCleanupConfig

	// ControlSocket overrides the per-instance socket path. Mostly for
	// tests.
	ControlSocket string

	// CleanupInterval is how often the maintenance loop runs stale
	// instance cleanup and the done-KB sweep. Default 5 minutes.
	CleanupInterval time.Duration

	// WatchdogInterval is how often the watchdog scans active claims.
	// Default 1 minute.
	WatchdogInterval time.Duration

	// EventCleanupInterval is how often event retention runs. Default
	// 1 hour.
	EventCleanupInterval time.Duration
}

// Worker is one swarm instance: it mirrors tracker issues into the
// work queue, claims ready items, runs the matching role agent, and
// closes or reopens items on the supervisor's verdict.
type Worker struct {
	store    storage.Storage
	tracker  *tracker.Client
	ai       *ai.Supervisor
	budget   *cost.Tracker
	registry *agents.Registry
	control  *control.Server

	instanceID string
	hostname   string
	pid        int
	version    string
	roles      []types.AgentRole

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleThreshold    time.Duration
	cleanupInterval   time.Duration
	watchdogInterval  time.Duration
	retentionInterval time.Duration
	idleCycles        int
	idleMultiplier    int

	retentionConfig config.EventRetentionConfig
	cleanupAge      time.Duration
	cleanupKeep     int

	// Each loop gets its own stop/done pair so Stop can drain them
	// concurrently.
	eventStopCh       chan struct{}
	eventDoneCh       chan struct{}
	heartbeatStopCh   chan struct{}
	heartbeatDoneCh   chan struct{}
	maintenanceStopCh chan struct{}
	maintenanceDoneCh chan struct{}
	watchdogStopCh    chan struct{}
	watchdogDoneCh    chan struct{}
	retentionStopCh   chan struct{}
	retentionDoneCh   chan struct{}

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	mu          sync.RWMutex
	running     bool
	paused      bool
	pauseReason string
	claimed     int
	completed   int
	failed      int
	lastPoll    time.Time
	startedAt   time.Time
}

// New creates a worker. Missing tracker or AI handles degrade the
// worker instead of failing it: retrieval still works, content
// production does not.
func New(cfg *Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	if cfg.Tracker == nil {
		fmt.Fprintf(os.Stderr, "Warning: no tracker configured (running from local work mirror only)\n")
	}
	if cfg.AI == nil {
		fmt.Fprintf(os.Stderr, "Warning: no AI supervisor (content agents disabled, reviews auto-approve)\n")
	}

	roles, err := workRoles(cfg.Swarm.Roles)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		store:      cfg.Store,
		tracker:    cfg.Tracker,
		ai:         cfg.AI,
		budget:     cfg.Budget,
		instanceID: uuid.New().String(),
		hostname:   hostname,
		pid:        os.Getpid(),
		version:    cfg.Version,
		roles:      roles,

		pollInterval:      secondsOr(cfg.Swarm.PollIntervalSeconds, 30*time.Second),
		heartbeatInterval: secondsOr(cfg.Swarm.HeartbeatSeconds, 30*time.Second),
		staleThreshold:    secondsOr(cfg.Swarm.StaleThresholdSeconds, 5*time.Minute),
		cleanupInterval:   durationOr(cfg.CleanupInterval, 5*time.Minute),
		watchdogInterval:  durationOr(cfg.WatchdogInterval, time.Minute),
		retentionInterval: durationOr(cfg.EventCleanupInterval, time.Hour),
		idleCycles:        intOr(cfg.Swarm.IdleCyclesBeforeBackoff, 5),
		idleMultiplier:    intOr(cfg.Swarm.IdleBackoffMultiplier, 3),

		retentionConfig: cfg.EventRetention,
		cleanupAge:      time.Duration(intOr(cfg.InstanceCleanup.CleanupAgeHours, 24)) * time.Hour,
		cleanupKeep:     cfg.InstanceCleanup.CleanupKeep,

		eventStopCh:       make(chan struct{}),
		eventDoneCh:       make(chan struct{}),
		heartbeatStopCh:   make(chan struct{}),
		heartbeatDoneCh:   make(chan struct{}),
		maintenanceStopCh: make(chan struct{}),
		maintenanceDoneCh: make(chan struct{}),
		watchdogStopCh:    make(chan struct{}),
		watchdogDoneCh:    make(chan struct{}),
		retentionStopCh:   make(chan struct{}),
		retentionDoneCh:   make(chan struct{}),
		shutdownCh:        make(chan struct{}),
	}
	if w.cleanupKeep == 0 {
		w.cleanupKeep = 10
	}

	w.registry = agents.NewRegistry(agents.Deps{
		Store:    cfg.Store,
		Tracker:  cfg.Tracker,
		AI:       cfg.AI,
		WorkerID: w.instanceID,
	})

	socketPath := cfg.ControlSocket
	if socketPath == "" {
		socketPath = control.SocketPath(w.instanceID)
	}
	srv, err := control.NewServer(socketPath, w.handleControl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: control socket unavailable: %v (pause/resume disabled)\n", err)
	} else {
		w.control = srv
	}

	return w, nil
}

// InstanceID returns this worker's unique ID.
func (w *Worker) InstanceID() string { return w.instanceID }

// ControlSocket returns the control socket path, or "" when the
// control server could not be created.
func (w *Worker) ControlSocket() string {
	if w.control == nil {
		return ""
	}
	return w.control.SocketPathInUse()
}

// ShutdownRequested is closed when a stop command arrives over the
// control socket. The caller owns the actual Stop call.
func (w *Worker) ShutdownRequested() <-chan struct{} { return w.shutdownCh }

// Start registers the instance, reaps stale claims left by dead
// workers, performs one synchronous tracker sync, and launches the
// loops.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is already running")
	}
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	instance := &types.WorkerInstance{
		InstanceID:    w.instanceID,
		Hostname:      w.hostname,
		PID:           w.pid,
		Roles:         w.roles,
		Version:       w.version,
		Status:        types.InstanceRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
		Metadata:      "{}",
	}
	if err := w.store.RegisterInstance(ctx, instance); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to register worker instance: %w", err)
	}

	// Reap claims held by dead instances before polling, so this
	// worker never races a ghost for the same item.
	cleaned, err := w.store.CleanupStaleInstances(ctx, w.staleThreshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: stale instance cleanup failed on startup: %v\n", err)
	} else if cleaned > 0 {
		fmt.Printf("Cleanup: reaped %d stale instance(s) on startup\n", cleaned)
	}

	// Initial mirror sync so the first poll sees current tracker state.
	if synced, err := w.syncTracker(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: initial tracker sync failed: %v\n", err)
	} else if w.tracker != nil {
		w.emit(ctx, events.New(events.EventTypeTrackerSyncCompleted, "", w.instanceID, "",
			events.SeverityInfo, fmt.Sprintf("Synced %d tracker issue(s) into the work mirror", synced), nil))
	}

	if w.control != nil {
		if err := w.control.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: control server failed to start: %v\n", err)
			w.control = nil
		}
	}

	w.emit(ctx, events.New(events.EventTypeWorkerStarted, "", w.instanceID, "",
		events.SeverityInfo,
		fmt.Sprintf("Worker started on %s (pid %d, roles %s)", w.hostname, w.pid, rolesString(w.roles)),
		map[string]any{"hostname": w.hostname, "pid": w.pid, "version": w.version}))

	go w.eventLoop(ctx)
	go w.heartbeatLoop(ctx)
	go w.maintenanceLoop(ctx)
	go w.watchdogLoop(ctx)
	go w.retentionLoop(ctx)

	return nil
}

// Stop signals every loop, drains them concurrently, and marks the
// instance stopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is not running")
	}
	w.mu.Unlock()

	close(w.eventStopCh)
	close(w.heartbeatStopCh)
	close(w.maintenanceStopCh)
	close(w.watchdogStopCh)
	close(w.retentionStopCh)

	pending := []<-chan struct{}{
		w.eventDoneCh, w.heartbeatDoneCh, w.maintenanceDoneCh,
		w.watchdogDoneCh, w.retentionDoneCh,
	}
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if w.control != nil {
		if err := w.control.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: control server shutdown failed: %v\n", err)
		}
	}

	w.emit(ctx, events.New(events.EventTypeWorkerStopped, "", w.instanceID, "",
		events.SeverityInfo, "Worker stopped", nil))

	if err := w.store.MarkInstanceStopped(ctx, w.instanceID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to mark instance stopped: %v\n", err)
	}

	if deleted, err := w.store.DeleteOldStoppedInstances(ctx, w.cleanupAge, w.cleanupKeep); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to delete old stopped instances: %v\n", err)
	} else if deleted > 0 {
		fmt.Printf("Cleanup: deleted %d old stopped instance(s)\n", deleted)
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning reports whether the worker loops are live.
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Pause stops the worker from claiming new work. In-flight work
// finishes normally.
func (w *Worker) Pause(reason string) {
	w.mu.Lock()
	w.paused = true
	w.pauseReason = reason
	w.mu.Unlock()
}

// Resume lifts a pause.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.pauseReason = ""
	w.mu.Unlock()
}

func (w *Worker) isPaused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paused
}

// Status is a point-in-time snapshot for the control socket and CLI.
type Status struct {
	InstanceID string    `json:"instance_id"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	Roles      []string  `json:"roles"`
	Running    bool      `json:"running"`
	Paused     bool      `json:"paused"`
	PauseNote  string    `json:"pause_note,omitempty"`
	Claimed    int       `json:"claimed"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	LastPoll   time.Time `json:"last_poll"`
	StartedAt  time.Time `json:"started_at"`
}

// StatusSnapshot returns the worker's current counters.
func (w *Worker) StatusSnapshot() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	roles := make([]string, len(w.roles))
	for i, r := range w.roles {
		roles[i] = string(r)
	}
	return Status{
		InstanceID: w.instanceID,
		Hostname:   w.hostname,
		PID:        w.pid,
		Roles:      roles,
		Running:    w.running,
		Paused:     w.paused,
		PauseNote:  w.pauseReason,
		Claimed:    w.claimed,
		Completed:  w.completed,
		Failed:     w.failed,
		LastPoll:   w.lastPoll,
		StartedAt:  w.startedAt,
	}
}

func (w *Worker) handleControl(cmd control.Command) (map[string]any, error) {
	switch cmd.Type {
	case control.CmdPause:
		w.Pause(cmd.Reason)
		return map[string]any{"paused": true, "reason": cmd.Reason}, nil
	case control.CmdResume:
		w.Resume()
		return map[string]any{"paused": false}, nil
	case control.CmdStatus:
		st := w.StatusSnapshot()
		return map[string]any{
			"instance_id": st.InstanceID,
			"hostname":    st.Hostname,
			"pid":         st.PID,
			"roles":       st.Roles,
			"running":     st.Running,
			"paused":      st.Paused,
			"pause_note":  st.PauseNote,
			"claimed":     st.Claimed,
			"completed":   st.Completed,
			"failed":      st.Failed,
			"uptime":      time.Since(st.StartedAt).Round(time.Second).String(),
		}, nil
	case control.CmdStop:
		w.shutdownOnce.Do(func() { close(w.shutdownCh) })
		return map[string]any{"stopping": true}, nil
	}
	return nil, fmt.Errorf("unknown control command %q", cmd.Type)
}

// emit stores an event best-effort; a broken activity feed must not
// break the worker.
func (w *Worker) emit(ctx context.Context, e *events.AgentEvent) {
	if err := w.store.StoreEvent(ctx, e); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store %s event: %v\n", e.Type, err)
	}
}

// workRoles resolves configured role names. Empty means every
// claimable role; the supervisor never claims queue work directly
// unless asked for by name.
func workRoles(names []string) ([]types.AgentRole, error) {
	if len(names) == 0 {
		return []types.AgentRole{
			types.RoleManagement, types.RolePlanner, types.RoleCreator,
			types.RoleReviewer, types.RoleRetrieval,
		}, nil
	}
	var roles []types.AgentRole
	for _, name := range names {
		r := types.AgentRole(name)
		if !r.IsValid() {
			return nil, fmt.Errorf("unknown agent role %q in swarm config", name)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func rolesString(roles []types.AgentRole) string {
	out := ""
	for i, r := range roles {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}

func secondsOr(secs int, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func intOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
