package progress

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
	"github.com/xkilldash9x/dialtest-cli/internal/goals"
)

// Tracker is the per-conversation progress tracker: a flow-state machine fed
// by adapted intents, first-occurrence field collection, issue detection, and
// per-turn goal evaluation. One tracker is owned by exactly one conversation
// and is not safe for concurrent use.
type Tracker struct {
	sessionID string
	cfg       config.TrackerConfig
	logger    *zap.Logger
	goalSet   []schemas.Goal

	turn      int
	flowState schemas.FlowState
	intents   []schemas.Intent
	collected map[schemas.DataField]schemas.CollectedField
	pending   []schemas.DataField
	completed []string
	issues    []schemas.Issue

	bookingConfirmed  bool
	transferInitiated bool
	stuckFlagged      bool

	startedAt time.Time
	now       func() time.Time
}

// New creates a progress tracker seeded with the test case's goals. The
// pending-field list is the union of every data_collection goal's required
// fields, in declaration order.
func New(sessionID string, goalSet []schemas.Goal, cfg config.TrackerConfig, logger *zap.Logger) *Tracker {
	t := &Tracker{
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logger.Named("progress_tracker").With(zap.String("session_id", sessionID)),
		goalSet:   goalSet,
		flowState: schemas.FlowGreeting,
		collected: make(map[schemas.DataField]schemas.CollectedField),
		now:       time.Now,
	}
	t.startedAt = t.now()

	seen := make(map[schemas.DataField]bool)
	for _, goal := range goalSet {
		if goal.Type != schemas.GoalDataCollection {
			continue
		}
		for _, field := range goal.RequiredFields {
			if !seen[field] {
				seen[field] = true
				t.pending = append(t.pending, field)
			}
		}
	}
	return t
}

// UpdateProgress ingests one agent classification plus the caller's reply to
// it. Unmapped intents leave the flow state unchanged; the booking and
// transfer flags are persistent and never reset by later transitions.
func (t *Tracker) UpdateProgress(res schemas.ClassificationResult, userReply string, turn int) {
	intent := IntentFor(res)
	t.turn = turn
	t.intents = append(t.intents, intent)

	if next, ok := flowByIntent[intent]; ok {
		if next != t.flowState {
			t.logger.Debug("Flow state transition",
				zap.String("from", string(t.flowState)),
				zap.String("to", string(next)),
				zap.String("intent", string(intent)))
		}
		t.flowState = next
	}

	if intent == schemas.IntentConfirmingBooking || res.ConfirmedThisTurn {
		t.bookingConfirmed = true
	}
	if intent == schemas.IntentInitiatingTransfer {
		t.transferInitiated = true
	}

	t.collectField(intent, userReply, turn)
	if t.cfg.DetectIssues {
		t.detectIssues(intent, res, turn)
	}
	t.evaluateGoals()
}

// MarkBookingConfirmed sets the persistent booking flag from outside the
// intent stream, for harnesses that learn of the booking another way.
func (t *Tracker) MarkBookingConfirmed() {
	t.bookingConfirmed = true
	t.evaluateGoals()
}

// MarkTransferInitiated is the transfer-side counterpart of
// MarkBookingConfirmed.
func (t *Tracker) MarkTransferInitiated() {
	t.transferInitiated = true
	t.evaluateGoals()
}

func (t *Tracker) collectField(intent schemas.Intent, userReply string, turn int) {
	field, ok := fieldByIntent[intent]
	if !ok || userReply == "" {
		return
	}
	if _, exists := t.collected[field]; exists {
		return
	}
	t.collected[field] = schemas.CollectedField{
		Field: field,
		Value: userReply,
		Turn:  turn,
	}
	for i, pending := range t.pending {
		if pending == field {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.logger.Debug("Field collected",
		zap.String("field", string(field)),
		zap.Int("turn", turn),
		zap.Int("pending", len(t.pending)))
}

func (t *Tracker) detectIssues(intent schemas.Intent, res schemas.ClassificationResult, turn int) {
	if n, count := len(t.intents), t.cfg.MaxRepetitionCount; count >= 2 && n >= count {
		repeating := true
		for _, prev := range t.intents[n-count:] {
			if prev != intent {
				repeating = false
				break
			}
		}
		if repeating {
			t.addIssue(schemas.Issue{
				Type:        schemas.IssueRepeating,
				Severity:    schemas.SeverityMedium,
				Turn:        transcriptTurn(turn),
				Description: "agent repeated intent " + string(intent),
			})
		}
	}

	// At most one stuck issue per conversation.
	if turn >= t.cfg.StuckThreshold && len(t.collected) == 0 && !t.stuckFlagged {
		t.stuckFlagged = true
		t.addIssue(schemas.Issue{
			Type:        schemas.IssueStuck,
			Severity:    schemas.SeverityHigh,
			Turn:        transcriptTurn(turn),
			Description: "no fields collected this deep into the conversation",
		})
	}

	if intent == schemas.IntentUnknown && res.Confidence < 0.5 {
		t.addIssue(schemas.Issue{
			Type:        schemas.IssueUnknownIntent,
			Severity:    schemas.SeverityLow,
			Turn:        transcriptTurn(turn),
			Description: "agent utterance did not map to any known intent",
		})
	}
}

func (t *Tracker) addIssue(issue schemas.Issue) {
	t.issues = append(t.issues, issue)
	t.logger.Debug("Issue detected",
		zap.String("type", string(issue.Type)),
		zap.Int("turn", issue.Turn))
}

// evaluateGoals runs after every update. Completed goals are monotone: a goal
// marked complete stays complete for the rest of the conversation.
func (t *Tracker) evaluateGoals() {
	done := make(map[string]bool, len(t.completed))
	for _, id := range t.completed {
		done[id] = true
	}
	gctx := t.goalContext()

	for _, goal := range t.goalSet {
		if done[goal.ID] {
			continue
		}
		if r := goals.EvaluateGoal(goal, gctx, nil); r.Passed {
			t.completed = append(t.completed, goal.ID)
			t.logger.Debug("Goal completed",
				zap.String("goal_id", goal.ID),
				zap.Int("turn", t.turn))
		}
	}
}

func (t *Tracker) goalContext() schemas.GoalContext {
	fields := make(map[schemas.DataField]string, len(t.collected))
	for f, c := range t.collected {
		fields[f] = c.Value
	}
	return schemas.GoalContext{
		CollectedFields:   fields,
		BookingConfirmed:  t.bookingConfirmed,
		TransferInitiated: t.transferInitiated,
		TurnCount:         t.turn,
		Elapsed:           t.now().Sub(t.startedAt),
		FlowState:         t.flowState,
	}
}

// transcriptTurn maps an internal turn to its position in a transcript that
// interleaves agent and caller messages.
func transcriptTurn(internal int) int { return 2 * internal }

// -- Read accessors --

// FlowState returns the current flow state.
func (t *Tracker) FlowState() schemas.FlowState { return t.flowState }

// BookingConfirmed reports the persistent booking flag.
func (t *Tracker) BookingConfirmed() bool { return t.bookingConfirmed }

// TransferInitiated reports the persistent transfer flag.
func (t *Tracker) TransferInitiated() bool { return t.transferInitiated }

// Collected returns the record for a field, if it was collected.
func (t *Tracker) Collected(field schemas.DataField) (schemas.CollectedField, bool) {
	c, ok := t.collected[field]
	return c, ok
}

// CompletedGoals lists goal IDs satisfied so far, in completion order.
func (t *Tracker) CompletedGoals() []string {
	out := make([]string, len(t.completed))
	copy(out, t.completed)
	return out
}

// Snapshot returns a copy of the full progress state. The returned snapshot
// shares nothing with the tracker and is safe to hand across goroutines.
func (t *Tracker) Snapshot() schemas.ProgressSnapshot {
	collected := make(map[schemas.DataField]schemas.CollectedField, len(t.collected))
	for f, c := range t.collected {
		collected[f] = c
	}
	snap := schemas.ProgressSnapshot{
		Turn:              t.turn,
		FlowState:         t.flowState,
		IntentHistory:     append([]schemas.Intent(nil), t.intents...),
		CollectedFields:   collected,
		PendingFields:     append([]schemas.DataField(nil), t.pending...),
		CompletedGoals:    append([]string(nil), t.completed...),
		Issues:            append([]schemas.Issue(nil), t.issues...),
		BookingConfirmed:  t.bookingConfirmed,
		TransferInitiated: t.transferInitiated,
		StartedAt:         t.startedAt,
	}
	return snap
}
