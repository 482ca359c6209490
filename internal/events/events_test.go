package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPopulatesIdentity(t *testing.T) {
	e := New(EventTypeWorkClaimed, "42#7", "worker-1", "creator", SeverityInfo, "claimed", nil)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "42#7", e.WorkID)
	assert.NotNil(t, e.Data, "nil data should be initialized")
}

func TestStateTransitionRoundTrip(t *testing.T) {
	e, err := NewStateTransition("42#7", "worker-1", "creator", StateTransitionData{
		From: "claimed", To: "assessing",
	})
	require.NoError(t, err)
	assert.Equal(t, EventTypeStateTransition, e.Type)
	assert.Equal(t, "claimed → assessing", e.Message)

	got, err := e.GetStateTransitionData()
	require.NoError(t, err)
	assert.Equal(t, "claimed", got.From)
	assert.Equal(t, "assessing", got.To)
}

func TestReviewEventSeverityFollowsVerdict(t *testing.T) {
	approve, err := NewReviewEvent("42#7", "worker-1", "looks good", ReviewData{Verdict: "approve", Score: 0.93})
	require.NoError(t, err)
	assert.Equal(t, EventTypeReviewPassed, approve.Type)
	assert.Equal(t, SeverityInfo, approve.Severity)

	revise, err := NewReviewEvent("42#7", "worker-1", "needs sources", ReviewData{
		Verdict: "revise", Score: 0.4, Issues: []string{"no citations"},
	})
	require.NoError(t, err)
	assert.Equal(t, EventTypeRevisionRequested, revise.Type)
	assert.Equal(t, SeverityWarning, revise.Severity)

	escalate, err := NewReviewEvent("42#7", "worker-1", "stuck", ReviewData{Verdict: "escalate"})
	require.NoError(t, err)
	assert.Equal(t, EventTypeEscalation, escalate.Type)
	assert.Equal(t, SeverityError, escalate.Severity)

	got, err := revise.GetReviewData()
	require.NoError(t, err)
	assert.Equal(t, []string{"no citations"}, got.Issues)
}

func TestAIUsageRoundTrip(t *testing.T) {
	e, err := NewAIUsage("42#7", "worker-1", "planner", AIUsageData{
		Model: "claude-sonnet-4-5", Operation: "plan_content",
		InputTokens: 1200, OutputTokens: 340, DurationMS: 1800,
	})
	require.NoError(t, err)

	got, err := e.GetAIUsageData()
	require.NoError(t, err)
	assert.Equal(t, int64(1200), got.InputTokens)
	assert.Equal(t, "plan_content", got.Operation)
}

func TestSeverityIsValid(t *testing.T) {
	for _, s := range []EventSeverity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		assert.True(t, s.IsValid())
	}
	assert.False(t, EventSeverity("noise").IsValid())
}
