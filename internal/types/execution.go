package types

import (
	"fmt"
	"time"
)

// ExecutionState tracks where a claimed work item is in its lifecycle.
//
// State machine:
//
//	pending → claimed → assessing → executing → reviewing → committing → completed
//	                        │            │           │            │
//	                        └────────────┴─────┬─────┴────────────┘
//	                                           ▼
//	                                        failed
//
// Any state may transition to failed. A transition to the current state
// is an idempotent no-op. completed and failed are terminal except that
// failed may return to pending when the item is released and reopened.
type ExecutionState string

const (
	// ExecutionPending means the work item is known but unclaimed.
	ExecutionPending ExecutionState = "pending"
	// ExecutionClaimed means an instance holds the claim but has not started.
	ExecutionClaimed ExecutionState = "claimed"
	// ExecutionAssessing means the agent is deciding how to resume or start.
	ExecutionAssessing ExecutionState = "assessing"
	// ExecutionExecuting means the agent is doing the content work.
	ExecutionExecuting ExecutionState = "executing"
	// ExecutionReviewing means the supervisor is reviewing the result.
	ExecutionReviewing ExecutionState = "reviewing"
	// ExecutionCommitting means approved results are being written back.
	ExecutionCommitting ExecutionState = "committing"
	// ExecutionCompleted means the work item finished successfully.
	ExecutionCompleted ExecutionState = "completed"
	// ExecutionFailed means the attempt failed; the item may be reopened.
	ExecutionFailed ExecutionState = "failed"
)

// IsValid checks if the execution state is a known value.
func (s ExecutionState) IsValid() bool {
	switch s {
	case ExecutionPending, ExecutionClaimed, ExecutionAssessing, ExecutionExecuting,
		ExecutionReviewing, ExecutionCommitting, ExecutionCompleted, ExecutionFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further forward transition exists.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// IsActive reports whether the state represents a live claim. Active
// states block other instances from claiming the same work item.
func (s ExecutionState) IsActive() bool {
	switch s {
	case ExecutionClaimed, ExecutionAssessing, ExecutionExecuting,
		ExecutionReviewing, ExecutionCommitting:
		return true
	}
	return false
}

// ValidTransitions returns the states reachable from s, not counting
// the idempotent same-state transition.
func (s ExecutionState) ValidTransitions() []ExecutionState {
	switch s {
	case ExecutionPending:
		return []ExecutionState{ExecutionClaimed, ExecutionFailed}
	case ExecutionClaimed:
		return []ExecutionState{ExecutionAssessing, ExecutionFailed}
	case ExecutionAssessing:
		return []ExecutionState{ExecutionExecuting, ExecutionFailed}
	case ExecutionExecuting:
		return []ExecutionState{ExecutionReviewing, ExecutionFailed}
	case ExecutionReviewing:
		return []ExecutionState{ExecutionCommitting, ExecutionExecuting, ExecutionFailed}
	case ExecutionCommitting:
		return []ExecutionState{ExecutionCompleted, ExecutionFailed}
	case ExecutionFailed:
		return []ExecutionState{ExecutionPending}
	case ExecutionCompleted:
		return nil
	}
	return nil
}

// CanTransitionTo reports whether s may move to target. Same-state
// transitions always succeed so retried updates stay idempotent.
func (s ExecutionState) CanTransitionTo(target ExecutionState) bool {
	if s == target {
		return true
	}
	for _, t := range s.ValidTransitions() {
		if t == target {
			return true
		}
	}
	return false
}

// WorkExecutionState is the per-work-item claim row. One row exists per
// work item; InstanceID names the current (or last) holder.
type WorkExecutionState struct {
	WorkID        string         `json:"work_id"`
	InstanceID    string         `json:"instance_id"`
	State         ExecutionState `json:"state"`
	AttemptCount  int            `json:"attempt_count"`
	Checkpoint    string         `json:"checkpoint,omitempty"` // JSON blob
	LastError     string         `json:"last_error,omitempty"`
	ClaimedAt     time.Time      `json:"claimed_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Interventions int            `json:"interventions"`
}

// ExecutionAttempt is one historical attempt at a work item, recorded
// when the attempt reaches a terminal state or is released.
type ExecutionAttempt struct {
	ID         int64          `json:"id"`
	WorkID     string         `json:"work_id"`
	InstanceID string         `json:"instance_id"`
	AgentRole  AgentRole      `json:"agent_role"`
	FinalState ExecutionState `json:"final_state"`
	Summary    string         `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
}

// TransitionError reports an invalid execution state transition and
// names the valid targets so callers can log something actionable.
type TransitionError struct {
	From ExecutionState
	To   ExecutionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s → %s (valid: %v)", e.From, e.To, e.From.ValidTransitions())
}
