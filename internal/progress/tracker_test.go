package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

func testTrackerConfig() config.TrackerConfig {
	return config.TrackerConfig{
		MaxRepetitionCount: 2,
		StuckThreshold:     5,
		DetectIssues:       true,
	}
}

func newProgressTracker(goalSet ...schemas.Goal) *Tracker {
	return New("test-session", goalSet, testTrackerConfig(), zap.NewNop())
}

func askingFor(field schemas.DataField) schemas.ClassificationResult {
	return schemas.ClassificationResult{
		Category:   schemas.CategoryProvideData,
		Confidence: 0.9,
		DataFields: []schemas.DataField{field},
	}
}

func terminal(state schemas.TerminalState) schemas.ClassificationResult {
	res := schemas.ClassificationResult{
		Category:      schemas.CategoryAcknowledge,
		Confidence:    0.9,
		TerminalState: state,
	}
	if state == schemas.TerminalBookingConfirmed {
		res.ConfirmedThisTurn = true
	}
	return res
}

func TestTrackerFlowStateProgression(t *testing.T) {
	tracker := newProgressTracker()
	require.Equal(t, schemas.FlowGreeting, tracker.FlowState())

	tracker.UpdateProgress(askingFor(schemas.FieldCallerName), "Dana Reyes", 1)
	assert.Equal(t, schemas.FlowCollectingParent, tracker.FlowState())

	tracker.UpdateProgress(askingFor(schemas.FieldChildName), "Mia", 2)
	assert.Equal(t, schemas.FlowCollectingChild, tracker.FlowState())

	tracker.UpdateProgress(askingFor(schemas.FieldPreferredTime), "mornings", 3)
	assert.Equal(t, schemas.FlowScheduling, tracker.FlowState())

	tracker.UpdateProgress(terminal(schemas.TerminalBookingConfirmed), "great, thanks", 4)
	assert.Equal(t, schemas.FlowConfirmation, tracker.FlowState())
}

func TestTrackerUnmappedIntentLeavesFlowUnchanged(t *testing.T) {
	tracker := newProgressTracker()
	tracker.UpdateProgress(askingFor(schemas.FieldCallerPhone), "555-123-4567", 1)
	require.Equal(t, schemas.FlowCollectingParent, tracker.FlowState())

	tracker.UpdateProgress(schemas.ClassificationResult{
		Category:   schemas.CategoryClarifyRequest,
		Confidence: 0.3,
	}, "sorry, could you repeat that?", 2)
	assert.Equal(t, schemas.FlowCollectingParent, tracker.FlowState())
}

func TestTrackerPersistentFlagMonotonicity(t *testing.T) {
	bookingGoal := schemas.Goal{ID: "booking", Type: schemas.GoalBookingConfirmed, Required: true}
	tracker := newProgressTracker(bookingGoal)

	tracker.UpdateProgress(terminal(schemas.TerminalBookingConfirmed), "thanks", 3)
	require.True(t, tracker.BookingConfirmed())
	require.Contains(t, tracker.CompletedGoals(), "booking")

	tracker.UpdateProgress(terminal(schemas.TerminalConversationEnded), "bye", 4)
	assert.True(t, tracker.BookingConfirmed())
	assert.Equal(t, schemas.FlowEnded, tracker.FlowState())
	assert.Contains(t, tracker.CompletedGoals(), "booking")
}

func TestTrackerFirstOccurrenceFieldCollection(t *testing.T) {
	tracker := newProgressTracker(schemas.Goal{
		ID:             "collect",
		Type:           schemas.GoalDataCollection,
		RequiredFields: []schemas.DataField{schemas.FieldCallerPhone, schemas.FieldChildName},
		Required:       true,
	})

	snap := tracker.Snapshot()
	assert.ElementsMatch(t,
		[]schemas.DataField{schemas.FieldCallerPhone, schemas.FieldChildName},
		snap.PendingFields)

	tracker.UpdateProgress(askingFor(schemas.FieldCallerPhone), "555-123-4567", 1)
	tracker.UpdateProgress(askingFor(schemas.FieldCallerPhone), "555-999-0000", 3)

	collected, ok := tracker.Collected(schemas.FieldCallerPhone)
	require.True(t, ok)
	assert.Equal(t, "555-123-4567", collected.Value)
	assert.Equal(t, 1, collected.Turn)

	snap = tracker.Snapshot()
	assert.Equal(t, []schemas.DataField{schemas.FieldChildName}, snap.PendingFields)
	assert.Empty(t, snap.CompletedGoals)

	tracker.UpdateProgress(askingFor(schemas.FieldChildName), "Mia", 4)
	snap = tracker.Snapshot()
	assert.Empty(t, snap.PendingFields)
	assert.Contains(t, snap.CompletedGoals, "collect")
}

func TestTrackerEmptyReplyCollectsNothing(t *testing.T) {
	tracker := newProgressTracker()
	tracker.UpdateProgress(askingFor(schemas.FieldCallerName), "", 1)
	_, ok := tracker.Collected(schemas.FieldCallerName)
	assert.False(t, ok)
}

func TestTrackerRepeatingIssueUsesTranscriptTurns(t *testing.T) {
	tracker := newProgressTracker()

	tracker.UpdateProgress(askingFor(schemas.FieldCallerPhone), "", 1)
	tracker.UpdateProgress(askingFor(schemas.FieldCallerPhone), "", 2)

	snap := tracker.Snapshot()
	require.NotEmpty(t, snap.Issues)
	issue := snap.Issues[0]
	assert.Equal(t, schemas.IssueRepeating, issue.Type)
	assert.Equal(t, 4, issue.Turn)
}

func TestTrackerStuckIssue(t *testing.T) {
	tracker := newProgressTracker()

	for turn := 1; turn <= 5; turn++ {
		tracker.UpdateProgress(schemas.ClassificationResult{
			Category:   schemas.CategoryAcknowledge,
			Confidence: 0.9,
		}, "okay", turn)
	}

	var stuck []schemas.Issue
	for _, issue := range tracker.Snapshot().Issues {
		if issue.Type == schemas.IssueStuck {
			stuck = append(stuck, issue)
		}
	}
	require.NotEmpty(t, stuck)
	assert.Equal(t, 10, stuck[0].Turn)
}

func TestTrackerStuckIssueFlaggedOnce(t *testing.T) {
	tracker := newProgressTracker()

	for turn := 1; turn <= 9; turn++ {
		tracker.UpdateProgress(schemas.ClassificationResult{
			Category:   schemas.CategoryAcknowledge,
			Confidence: 0.9,
		}, "okay", turn)
	}

	var stuck []schemas.Issue
	for _, issue := range tracker.Snapshot().Issues {
		if issue.Type == schemas.IssueStuck {
			stuck = append(stuck, issue)
		}
	}
	assert.Len(t, stuck, 1)
}

func TestTrackerUnknownIntentIssue(t *testing.T) {
	tracker := newProgressTracker()

	tracker.UpdateProgress(schemas.ClassificationResult{
		Category:   schemas.CategoryClarifyRequest,
		Confidence: 0.3,
	}, "what?", 1)

	snap := tracker.Snapshot()
	require.NotEmpty(t, snap.Issues)
	assert.Equal(t, schemas.IssueUnknownIntent, snap.Issues[0].Type)
}

func TestTrackerExternalMarkBookingConfirmed(t *testing.T) {
	tracker := newProgressTracker(schemas.Goal{
		ID: "booking", Type: schemas.GoalBookingConfirmed, Required: true,
	})

	require.False(t, tracker.BookingConfirmed())
	tracker.MarkBookingConfirmed()
	assert.True(t, tracker.BookingConfirmed())
	assert.Contains(t, tracker.CompletedGoals(), "booking")
}

func TestTrackerSnapshotIsDetached(t *testing.T) {
	tracker := newProgressTracker()
	tracker.UpdateProgress(askingFor(schemas.FieldCallerName), "Dana", 1)

	snap := tracker.Snapshot()
	snap.CollectedFields[schemas.FieldChildName] = schemas.CollectedField{Field: schemas.FieldChildName, Value: "x"}
	snap.IntentHistory = append(snap.IntentHistory, schemas.IntentUnknown)

	_, ok := tracker.Collected(schemas.FieldChildName)
	assert.False(t, ok)
	assert.Len(t, tracker.Snapshot().IntentHistory, 1)
}
