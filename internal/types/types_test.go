package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeBaseValidate(t *testing.T) {
	kb := &KnowledgeBase{Name: "Platform Runbooks"}
	require.NoError(t, kb.Validate())

	kb.Name = "   "
	assert.Error(t, kb.Validate())

	kb.Name = strings.Repeat("x", 201)
	assert.Error(t, kb.Validate())
}

func TestArticleValidate(t *testing.T) {
	a := &Article{KnowledgeBaseID: 1, Title: "Incident response"}
	require.NoError(t, a.Validate())

	a.Title = ""
	assert.Error(t, a.Validate())

	a.Title = "ok"
	a.KnowledgeBaseID = 0
	assert.Error(t, a.Validate())
}

func TestNormalizeTagName(t *testing.T) {
	n, err := NormalizeTagName("  GoLang  ")
	require.NoError(t, err)
	assert.Equal(t, "golang", n)

	_, err = NormalizeTagName("   ")
	assert.Error(t, err)
}

func TestWorkItemValidate(t *testing.T) {
	w := &WorkItem{
		ID:       WorkID("42", 7),
		Title:    "Draft onboarding article",
		Status:   StatusOpen,
		Priority: 2,
		Role:     RoleCreator,
	}
	require.NoError(t, w.Validate())
	assert.Equal(t, "42#7", w.ID)

	w.Priority = 5
	assert.Error(t, w.Validate())

	w.Priority = 2
	w.Status = "weird"
	assert.Error(t, w.Validate())

	w.Status = StatusOpen
	w.Role = "librarian"
	assert.Error(t, w.Validate())
}

func TestWorkerInstanceValidate(t *testing.T) {
	inst := &WorkerInstance{
		InstanceID: "worker-1",
		Status:     InstanceRunning,
		Metadata:   `{"version":"1.0"}`,
	}
	require.NoError(t, inst.Validate())

	inst.Metadata = "{not json"
	assert.Error(t, inst.Validate())

	inst.Metadata = ""
	inst.InstanceID = ""
	assert.Error(t, inst.Validate())
}

func TestExecutionStateTransitions(t *testing.T) {
	// Happy path walks forward through every state.
	path := []ExecutionState{
		ExecutionPending, ExecutionClaimed, ExecutionAssessing,
		ExecutionExecuting, ExecutionReviewing, ExecutionCommitting,
		ExecutionCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]),
			"%s should transition to %s", path[i], path[i+1])
	}

	// Same-state transitions are idempotent no-ops.
	for _, s := range path {
		assert.True(t, s.CanTransitionTo(s))
	}

	// Every non-terminal active state can fail.
	for _, s := range []ExecutionState{
		ExecutionClaimed, ExecutionAssessing, ExecutionExecuting,
		ExecutionReviewing, ExecutionCommitting,
	} {
		assert.True(t, s.CanTransitionTo(ExecutionFailed))
		assert.True(t, s.IsActive())
	}

	// Completed is terminal.
	assert.True(t, ExecutionCompleted.IsTerminal())
	assert.Empty(t, ExecutionCompleted.ValidTransitions())
	assert.False(t, ExecutionCompleted.CanTransitionTo(ExecutionPending))

	// Failed items can be reopened.
	assert.True(t, ExecutionFailed.CanTransitionTo(ExecutionPending))

	// Skipping states is rejected.
	assert.False(t, ExecutionClaimed.CanTransitionTo(ExecutionCommitting))
	assert.False(t, ExecutionPending.CanTransitionTo(ExecutionExecuting))

	// Review can bounce back to executing for revisions.
	assert.True(t, ExecutionReviewing.CanTransitionTo(ExecutionExecuting))
}

func TestTransitionError(t *testing.T) {
	err := &TransitionError{From: ExecutionClaimed, To: ExecutionCommitting}
	assert.Contains(t, err.Error(), "claimed")
	assert.Contains(t, err.Error(), "committing")
	assert.Contains(t, err.Error(), "assessing") // names the valid set
}

func TestAgentRoles(t *testing.T) {
	for _, r := range AllRoles {
		assert.True(t, r.IsValid())
		assert.NotEmpty(t, r.WorkLabels(), "role %s needs work labels", r)
		assert.GreaterOrEqual(t, r.MaxPriority(), 0)
	}

	r, err := ParseRole("creator")
	require.NoError(t, err)
	assert.Equal(t, RoleCreator, r)

	_, err = ParseRole("janitor")
	assert.Error(t, err)
}

func TestSessionContextValidate(t *testing.T) {
	s := &SessionContext{
		SessionID:         "sess-1",
		ConversationState: ConversationActive,
		IntentConfidence:  0.9,
	}
	require.NoError(t, s.Validate())

	s.IntentConfidence = 1.5
	assert.Error(t, s.Validate())

	s.IntentConfidence = 0.5
	s.ConversationState = "confused"
	assert.Error(t, s.Validate())

	s.ConversationState = ConversationActive
	s.SessionID = ""
	assert.Error(t, s.Validate())
}
