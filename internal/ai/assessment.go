package ai

import (
	"context"
	"fmt"

	"github.com/curateops/curator/internal/types"
)

// Work assessment decisions.
const (
	DecisionResume  = "resume"
	DecisionRestart = "restart"
	DecisionBlocked = "blocked"
)

// WorkAssessment is the pre-execution judgment of a work item that
// already has history: pick up where the last attempt stopped, start
// over, or flag it as blocked.
type WorkAssessment struct {
	Decision   string  `json:"decision"` // resume | restart | blocked
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"` // 0.0 - 1.0
	BlockedOn  string  `json:"blocked_on,omitempty"`
}

// AssessWorkState decides how to approach a work item given its
// checkpoint and attempt history. Fresh items (no checkpoint, first
// attempt) skip the model call entirely.
func (s *Supervisor) AssessWorkState(ctx context.Context, work *types.WorkItem, execState *types.WorkExecutionState) (*WorkAssessment, error) {
	if execState == nil || (execState.AttemptCount <= 1 && isEmptyCheckpoint(execState.Checkpoint)) {
		return &WorkAssessment{
			Decision:   DecisionRestart,
			Reasoning:  "no prior progress",
			Confidence: 1.0,
		}, nil
	}

	prompt := fmt.Sprintf(`You assess whether an autonomous agent should resume, restart, or
hold off on a work item.

Work item: %s
Title: %s
Description:
%s

Attempt count: %d
Last error: %s
Checkpoint from the previous attempt:
%s

Decisions:
- resume: the checkpoint shows usable progress; continue from it
- restart: the checkpoint is stale, empty, or the approach was wrong
- blocked: something outside the agent's control must change first

Respond with JSON only:
{"decision": "resume|restart|blocked", "reasoning": "one sentence", "confidence": 0.0-1.0, "blocked_on": ""}`,
		work.ID, work.Title, work.Description,
		execState.AttemptCount, execState.LastError, execState.Checkpoint)

	response, err := s.callModel(ctx, work.ID, "work-assessment", s.model, prompt, 2048)
	if err != nil {
		return nil, fmt.Errorf("work assessment: %w", err)
	}

	assessment, err := parseInto[WorkAssessment](response, "work assessment response")
	if err != nil {
		return nil, err
	}
	switch assessment.Decision {
	case DecisionResume, DecisionRestart, DecisionBlocked:
	default:
		return nil, fmt.Errorf("work assessment returned unknown decision %q", assessment.Decision)
	}
	return &assessment, nil
}

func isEmptyCheckpoint(checkpoint string) bool {
	switch checkpoint {
	case "", "{}", "null":
		return true
	}
	return false
}
