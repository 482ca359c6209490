package swarm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/curateops/curator/internal/agents"
	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// readyBatchSize is how many candidates one poll pulls from the ready
// queue. The worker claims at most one per cycle; the rest absorb
// claim contention against other instances.
const readyBatchSize = 10

// eventLoop polls for ready work and processes one item per cycle.
// After enough empty polls the cadence slows down; claiming anything
// snaps it back.
func (w *Worker) eventLoop(ctx context.Context) {
	defer close(w.eventDoneCh)

	interval := w.pollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.eventStopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			w.lastPoll = time.Now()
			w.mu.Unlock()

			if w.isPaused() {
				continue
			}

			if _, err := w.syncTracker(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "warning: tracker sync failed: %v\n", err)
			}

			claimed, err := w.processNextWork(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error processing work: %v\n", err)
			}

			if claimed {
				idle = 0
				if interval != w.pollInterval {
					interval = w.pollInterval
					ticker.Reset(interval)
				}
			} else {
				idle++
				if idle == w.idleCycles {
					interval = w.pollInterval * time.Duration(w.idleMultiplier)
					ticker.Reset(interval)
				}
			}
		}
	}
}

// syncTracker mirrors tracker issues for every linked KB project into
// the local work queue. Returns how many items were upserted.
func (w *Worker) syncTracker(ctx context.Context) (int, error) {
	if w.tracker == nil {
		return 0, nil
	}

	kbs, err := w.store.ListKnowledgeBases(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	total := 0
	for _, kb := range kbs {
		if kb.TrackerProjectID == "" {
			continue
		}
		issues, err := w.tracker.ListIssues(ctx, kb.TrackerProjectID, tracker.ListIssuesOptions{State: "all"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to list issues for project %s: %v\n", kb.TrackerProjectID, err)
			continue
		}
		for _, issue := range issues {
			item := tracker.ToWorkItem(kb.TrackerProjectID, issue)

			// Status propagation (a human closing or blocking an issue)
			// and the in_progress guard both live in the upsert itself.
			if err := w.store.UpsertWorkItem(ctx, item); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to mirror %s: %v\n", item.ID, err)
				continue
			}
			total++
		}
	}
	return total, nil
}

// processNextWork claims and runs at most one ready item. Claim
// contention with other instances is a lost race, not an error.
func (w *Worker) processNextWork(ctx context.Context) (bool, error) {
	items, err := w.store.GetReadyWork(ctx, types.WorkFilter{
		Roles:       w.roles,
		MaxPriority: -1,
		Limit:       readyBatchSize,
		SortPolicy:  types.SortPolicyPriority,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get ready work: %w", err)
	}

	for _, work := range items {
		err := w.store.ClaimWork(ctx, work.ID, w.instanceID)
		if errors.Is(err, types.ErrAlreadyClaimed) || errors.Is(err, types.ErrNotClaimable) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to claim %s: %w", work.ID, err)
		}
		w.executeWork(ctx, work)
		return true, nil
	}
	return false, nil
}

// executeWork drives one claimed item through the execution state
// machine: assess, execute, review, then complete or reopen.
func (w *Worker) executeWork(ctx context.Context, work *types.WorkItem) {
	started := time.Now()
	w.mu.Lock()
	w.claimed++
	w.mu.Unlock()

	w.emit(ctx, events.New(events.EventTypeWorkClaimed, work.ID, w.instanceID, string(work.Role),
		events.SeverityInfo, fmt.Sprintf("Claimed %q", work.Title), nil))

	if w.tracker != nil {
		if err := w.tracker.MarkClaimed(ctx, work.ProjectID, work.IID, w.instanceID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to mark %s claimed on tracker: %v\n", work.ID, err)
		}
	}

	if w.budget != nil {
		if ok, reason := w.budget.CanProceedForWork(ctx, work.ID); !ok {
			w.emit(ctx, events.New(events.EventTypeBudgetWarning, work.ID, w.instanceID, string(work.Role),
				events.SeverityWarning, fmt.Sprintf("Releasing %s: %s", work.ID, reason), nil))
			w.releaseAndReopen(ctx, work, "budget exhausted: "+reason)
			return
		}
	}

	if err := w.store.UpdateExecutionState(ctx, work.ID, types.ExecutionAssessing); err != nil {
		// Someone else moved the claim out from under us; walk away.
		fmt.Fprintf(os.Stderr, "warning: lost claim on %s before assessment: %v\n", work.ID, err)
		return
	}

	if done := w.assessWork(ctx, work, started); done {
		return
	}

	if err := w.store.UpdateExecutionState(ctx, work.ID, types.ExecutionExecuting); err != nil {
		fmt.Fprintf(os.Stderr, "warning: lost claim on %s before execution: %v\n", work.ID, err)
		return
	}

	agent, err := w.registry.ForWork(work)
	if err != nil {
		w.failWork(ctx, work, started, err)
		return
	}

	result, err := agent.Execute(ctx, work, nil)
	if err != nil {
		w.failWork(ctx, work, started, err)
		return
	}

	if err := w.store.UpdateExecutionState(ctx, work.ID, types.ExecutionReviewing); err != nil {
		fmt.Fprintf(os.Stderr, "warning: lost claim on %s before review: %v\n", work.ID, err)
		return
	}

	verdict, err := w.registry.Supervisor().Review(ctx, work, result)
	if err != nil {
		w.failWork(ctx, work, started, err)
		return
	}

	switch verdict.Verdict {
	case ai.VerdictApprove:
		w.completeWork(ctx, work, result, started)
	case ai.VerdictRevise:
		// The supervisor already put the revision requirements on the
		// tracker issue; reopening the mirror hands it back to the
		// queue.
		w.recordAttempt(ctx, work, started, types.ExecutionFailed, result.Summary, "revision requested")
		w.releaseAndReopen(ctx, work, "revision requested by supervisor")
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
	case ai.VerdictEscalate:
		// The supervisor filed the escalation issue; park the original
		// until a human weighs in.
		w.recordAttempt(ctx, work, started, types.ExecutionFailed, result.Summary, "escalated to human review")
		if err := w.store.ReleaseWork(ctx, work.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release %s: %v\n", work.ID, err)
		}
		if err := w.store.UpdateWorkStatus(ctx, work.ID, types.StatusBlocked); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to block %s: %v\n", work.ID, err)
		}
		w.emit(ctx, events.New(events.EventTypeWorkReleased, work.ID, w.instanceID, string(work.Role),
			events.SeverityWarning, fmt.Sprintf("Parked %s pending human review", work.ID), nil))
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
	}
}

// assessWork asks the AI whether a retried item should resume,
// restart, or stay blocked. Returns true when the item's cycle ended
// here. Assessment failures are non-fatal; the agent restarts.
func (w *Worker) assessWork(ctx context.Context, work *types.WorkItem, started time.Time) bool {
	if w.ai == nil {
		return false
	}

	w.emit(ctx, events.New(events.EventTypeAssessmentStarted, work.ID, w.instanceID, string(work.Role),
		events.SeverityInfo, fmt.Sprintf("Assessing state of %s", work.ID), nil))

	execState, err := w.store.GetExecutionState(ctx, work.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load execution state for %s: %v\n", work.ID, err)
		return false
	}

	assessment, err := w.ai.AssessWorkState(ctx, work, execState)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: assessment of %s failed: %v (restarting)\n", work.ID, err)
		return false
	}

	w.emit(ctx, events.New(events.EventTypeAssessmentCompleted, work.ID, w.instanceID, string(work.Role),
		events.SeverityInfo,
		fmt.Sprintf("Assessment: %s (%.2f) %s", assessment.Decision, assessment.Confidence, assessment.Reasoning),
		map[string]any{"decision": assessment.Decision, "confidence": assessment.Confidence}))

	if assessment.Decision != ai.DecisionBlocked {
		return false
	}

	reason := assessment.BlockedOn
	if reason == "" {
		reason = assessment.Reasoning
	}
	w.recordAttempt(ctx, work, started, types.ExecutionFailed, "", "blocked: "+reason)
	if err := w.store.ReleaseWork(ctx, work.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to release %s: %v\n", work.ID, err)
	}
	if err := w.store.UpdateWorkStatus(ctx, work.ID, types.StatusBlocked); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to block %s: %v\n", work.ID, err)
	}
	w.emit(ctx, events.New(events.EventTypeWorkReleased, work.ID, w.instanceID, string(work.Role),
		events.SeverityWarning, fmt.Sprintf("Blocked %s: %s", work.ID, reason), nil))
	return true
}

// completeWork closes out an approved item everywhere: tracker,
// mirror, state machine, history.
func (w *Worker) completeWork(ctx context.Context, work *types.WorkItem, result *agents.Result, started time.Time) {
	if err := w.store.UpdateExecutionState(ctx, work.ID, types.ExecutionCommitting); err != nil {
		fmt.Fprintf(os.Stderr, "warning: lost claim on %s before commit: %v\n", work.ID, err)
		return
	}

	if w.tracker != nil {
		if err := w.tracker.MarkCompleted(ctx, work.ProjectID, work.IID, result.Summary); err != nil {
			// The mirror still closes; the next sync reconciles the
			// tracker if this was transient.
			fmt.Fprintf(os.Stderr, "warning: failed to close %s on tracker: %v\n", work.ID, err)
		}
	}

	if err := w.store.UpdateWorkStatus(ctx, work.ID, types.StatusClosed); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close mirror for %s: %v\n", work.ID, err)
	}
	if err := w.store.UpdateExecutionState(ctx, work.ID, types.ExecutionCompleted); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to mark %s completed: %v\n", work.ID, err)
	}

	w.recordAttempt(ctx, work, started, types.ExecutionCompleted, result.Summary, "")
	w.emit(ctx, events.New(events.EventTypeWorkCompleted, work.ID, w.instanceID, string(work.Role),
		events.SeverityInfo, fmt.Sprintf("Completed %q: %s", work.Title, result.Summary), nil))

	w.mu.Lock()
	w.completed++
	w.mu.Unlock()
}

// failWork records the failure, reopens the item for another attempt,
// and clears the claimed flag on the tracker.
func (w *Worker) failWork(ctx context.Context, work *types.WorkItem, started time.Time, cause error) {
	w.recordAttempt(ctx, work, started, types.ExecutionFailed, "", cause.Error())
	w.releaseAndReopen(ctx, work, cause.Error())
	w.emit(ctx, events.New(events.EventTypeWorkFailed, work.ID, w.instanceID, string(work.Role),
		events.SeverityError, fmt.Sprintf("Failed %q: %v", work.Title, cause), nil))
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
}

func (w *Worker) releaseAndReopen(ctx context.Context, work *types.WorkItem, reason string) {
	if err := w.store.ReleaseWorkAndReopen(ctx, work.ID, w.instanceID, reason); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to release %s: %v\n", work.ID, err)
	}
	if w.tracker != nil {
		if err := w.tracker.ReleaseIssue(ctx, work.ProjectID, work.IID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release %s on tracker: %v\n", work.ID, err)
		}
	}
}

func (w *Worker) recordAttempt(ctx context.Context, work *types.WorkItem, started time.Time, final types.ExecutionState, summary, errText string) {
	attempt := &types.ExecutionAttempt{
		WorkID:     work.ID,
		InstanceID: w.instanceID,
		AgentRole:  work.Role,
		FinalState: final,
		Summary:    summary,
		Error:      errText,
		StartedAt:  started,
		EndedAt:    time.Now(),
	}
	if err := w.store.RecordExecutionAttempt(ctx, attempt); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record attempt for %s: %v\n", work.ID, err)
	}
}
