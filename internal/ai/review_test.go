package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func TestReviewVerdictValid(t *testing.T) {
	assert.True(t, ReviewVerdict{Verdict: VerdictApprove}.Valid())
	assert.True(t, ReviewVerdict{Verdict: VerdictRevise}.Valid())
	assert.True(t, ReviewVerdict{Verdict: VerdictEscalate}.Valid())
	assert.False(t, ReviewVerdict{Verdict: "maybe"}.Valid())
	assert.False(t, ReviewVerdict{}.Valid())
}

func TestAssessWorkStateSkipsFreshWork(t *testing.T) {
	s := &Supervisor{} // no client; fresh work must not reach the API

	work := &types.WorkItem{ID: "1#1", Title: "Draft intro article"}

	got, err := s.AssessWorkState(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionRestart, got.Decision)

	got, err = s.AssessWorkState(context.Background(), work, &types.WorkExecutionState{
		WorkID:       "1#1",
		AttemptCount: 1,
		Checkpoint:   "{}",
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionRestart, got.Decision)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestIsEmptyCheckpoint(t *testing.T) {
	assert.True(t, isEmptyCheckpoint(""))
	assert.True(t, isEmptyCheckpoint("{}"))
	assert.True(t, isEmptyCheckpoint("null"))
	assert.False(t, isEmptyCheckpoint(`{"phase": "outline"}`))
}
