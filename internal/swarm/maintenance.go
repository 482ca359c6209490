package swarm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
)

// heartbeatLoop keeps the instance row fresh so other workers' stale
// cleanup leaves this worker's claims alone.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	defer close(w.heartbeatDoneCh)

	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.heartbeatStopCh:
			return
		case <-ticker.C:
			if err := w.store.UpdateHeartbeat(ctx, w.instanceID); err != nil {
				fmt.Fprintf(os.Stderr, "warning: heartbeat failed: %v\n", err)
			}
		}
	}
}

// maintenanceLoop periodically reaps stale instances and sweeps done
// knowledge bases into tracker projects.
func (w *Worker) maintenanceLoop(ctx context.Context) {
	defer close(w.maintenanceDoneCh)

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.maintenanceStopCh:
			return
		case <-ticker.C:
			cleaned, err := w.store.CleanupStaleInstances(ctx, w.staleThreshold)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: stale instance cleanup failed: %v\n", err)
			} else if cleaned > 0 {
				w.emit(ctx, events.New(events.EventTypeStaleCleanup, "", w.instanceID, "",
					events.SeverityWarning,
					fmt.Sprintf("Reaped %d stale instance(s) and reopened their work", cleaned), nil))
			}

			w.sweepDoneKBs(ctx)
		}
	}
}

// sweepDoneKBs bootstraps tracker projects for knowledge bases marked
// done. Needs the tracker; skipped when degraded.
func (w *Worker) sweepDoneKBs(ctx context.Context) {
	if w.tracker == nil {
		return
	}
	mgmt := w.registry.Management()
	if mgmt == nil {
		return
	}
	if n, err := mgmt.SweepDoneKBs(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: done-KB sweep failed: %v\n", err)
	} else if n > 0 {
		fmt.Printf("Sweep: bootstrapped tracker projects for %d knowledge base(s)\n", n)
	}
}

// watchdogLoop scans active claims for wedged executions and reopens
// them. Repeat interventions on the same item back off exponentially
// so a poison item cannot monopolize the queue.
func (w *Worker) watchdogLoop(ctx context.Context) {
	defer close(w.watchdogDoneCh)

	ticker := time.NewTicker(w.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.watchdogStopCh:
			return
		case <-ticker.C:
			if err := w.checkStalledWork(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "warning: watchdog scan failed: %v\n", err)
			}
		}
	}
}

func (w *Worker) checkStalledWork(ctx context.Context) error {
	states, err := w.store.ListActiveExecutions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active executions: %w", err)
	}

	for _, st := range states {
		stalled := time.Since(st.UpdatedAt)
		if stalled < w.staleThreshold {
			continue
		}

		count, last, err := w.store.GetLastIntervention(ctx, st.WorkID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to read interventions for %s: %v\n", st.WorkID, err)
			continue
		}
		if wait := storage.CalculateInterventionBackoff(count, time.Since(last)); wait > 0 {
			continue
		}

		w.emit(ctx, events.New(events.EventTypeWatchdogWarning, st.WorkID, w.instanceID, "",
			events.SeverityWarning,
			fmt.Sprintf("No progress on %s for %s in state %s (held by %s)",
				st.WorkID, stalled.Round(time.Second), st.State, st.InstanceID),
			map[string]any{"state": string(st.State), "holder": st.InstanceID}))

		newCount, err := w.store.RecordIntervention(ctx, st.WorkID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record intervention for %s: %v\n", st.WorkID, err)
			continue
		}

		reason := fmt.Sprintf("watchdog intervention %d: stalled %s in state %s",
			newCount, stalled.Round(time.Second), st.State)
		if err := w.store.ReleaseWorkAndReopen(ctx, st.WorkID, "watchdog", reason); err != nil {
			fmt.Fprintf(os.Stderr, "warning: watchdog failed to release %s: %v\n", st.WorkID, err)
			continue
		}

		w.emit(ctx, events.New(events.EventTypeWatchdogRelease, st.WorkID, w.instanceID, "",
			events.SeverityWarning, fmt.Sprintf("Reopened %s: %s", st.WorkID, reason),
			map[string]any{"intervention": newCount}))
	}
	return nil
}

// retentionLoop trims old events per the retention config.
func (w *Worker) retentionLoop(ctx context.Context) {
	defer close(w.retentionDoneCh)

	ticker := time.NewTicker(w.retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.retentionStopCh:
			return
		case <-ticker.C:
			deleted, err := w.store.CleanupEvents(ctx, w.retentionConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: event cleanup failed: %v\n", err)
				continue
			}
			if deleted > 0 {
				w.emit(ctx, events.New(events.EventTypeEventCleanup, "", w.instanceID, "",
					events.SeverityInfo, fmt.Sprintf("Deleted %d expired event(s)", deleted), nil))
			}
		}
	}
}
