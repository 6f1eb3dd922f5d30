package convo

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// RepeatReason explains why the agent asked for the same field again.
type RepeatReason string

const (
	RepeatClarificationNeeded RepeatReason = "clarification_needed"
	RepeatUserCorrection      RepeatReason = "user_correction"
	RepeatContextSwitch       RepeatReason = "context_switch"
	RepeatAgentConfirmation   RepeatReason = "agent_confirmation"
	RepeatUnknown             RepeatReason = "unknown"
)

// FieldRequest is the request history for one data field.
type FieldRequest struct {
	Turns        []int
	WasRepeated  bool
	RepeatReason RepeatReason
}

// ProvidedValue is a collectable field's recorded value. FirstTurn never
// changes once set and is the provenance contradiction detection keys on;
// LastTurn moves forward every time the caller supplies the field again and
// is what the re-request window checks against.
type ProvidedValue struct {
	Value     string
	FirstTurn int
	LastTurn  int
}

// ChildContext accumulates per-child state as the conversation walks the
// caller's roster.
type ChildContext struct {
	Index  int
	Name   string
	DOB    string
	Age    int
	Fields map[schemas.DataField]string
	Booked bool
}

type agentTurnRecord struct {
	turn       int
	category   schemas.Category
	requested  []schemas.DataField
	phase      schemas.FlowState
	childIndex int
}

type userTurnRecord struct {
	turn       int
	text       string
	unclear    bool
	correction bool
}

// Tracker is the conversation context tracker: it accumulates per-child
// state, detects repeated field requests, and flags anomalies. One tracker
// is owned by exactly one conversation and is not safe for concurrent use.
// All operations ignore unknown fields rather than failing.
type Tracker struct {
	sessionID string
	cfg       config.TrackerConfig
	logger    *zap.Logger

	requests    map[schemas.DataField]*FieldRequest
	provided    map[schemas.DataField]*ProvidedValue
	children    map[int]*ChildContext
	activeChild int

	agentTurns   []agentTurnRecord
	userTurns    []userTurnRecord
	anomalies    []Anomaly
	stuckFlagged bool

	terminalState schemas.TerminalState
	terminalTurn  int
}

// NewTracker creates a context tracker for one conversation.
func NewTracker(sessionID string, cfg config.TrackerConfig, logger *zap.Logger) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logger.Named("context_tracker").With(zap.String("session_id", sessionID)),
		requests:  make(map[schemas.DataField]*FieldRequest),
		provided:  make(map[schemas.DataField]*ProvidedValue),
		children:  make(map[int]*ChildContext),
	}
}

// RecordAgentTurn ingests one agent classification. For every requested data
// field the current turn is appended to that field's request history; a field
// asked for at least MaxRepetitionCount times is flagged repeated exactly
// once, with an inferred reason.
func (t *Tracker) RecordAgentTurn(turn int, res schemas.ClassificationResult) {
	record := agentTurnRecord{
		turn:       turn,
		category:   res.Category,
		requested:  res.DataFields,
		phase:      classificationPhase(res),
		childIndex: t.activeChild,
	}
	t.agentTurns = append(t.agentTurns, record)

	for _, field := range res.DataFields {
		if !field.Valid() || field == schemas.FieldUnknown {
			continue
		}
		req := t.requests[field]
		if req == nil {
			req = &FieldRequest{}
			t.requests[field] = req
		}
		req.Turns = append(req.Turns, turn)
		if len(req.Turns) >= t.cfg.MaxRepetitionCount && !req.WasRepeated {
			req.WasRepeated = true
			req.RepeatReason = t.inferRepeatReason()
			t.logger.Debug("Field request repeated",
				zap.String("field", string(field)),
				zap.Ints("turns", req.Turns),
				zap.String("reason", string(req.RepeatReason)))
		}
	}

	if res.TerminalState != schemas.TerminalNone && t.terminalState == "" {
		t.terminalState = res.TerminalState
		t.terminalTurn = turn
	}

	if t.cfg.DetectAnomalies {
		t.detectAnomalies(turn, res)
	}
}

// RecordUserTurn ingests the caller's reply and the fields it provided.
// Unknown fields are ignored. A changed value fires a contradiction anomaly
// only when the normalized values genuinely differ; child fields compare
// within the active child's context, so switching to a sibling is not a
// contradiction.
func (t *Tracker) RecordUserTurn(turn int, text string, provided map[schemas.DataField]string) {
	t.userTurns = append(t.userTurns, userTurnRecord{
		turn:       turn,
		text:       text,
		unclear:    containsAny(strings.ToLower(text), hedgeMarkers),
		correction: containsAny(strings.ToLower(text), correctionMarkers),
	})

	for field, value := range provided {
		if !field.Valid() || field == schemas.FieldUnknown {
			continue
		}
		existing := t.provided[field]
		if existing == nil {
			t.provided[field] = &ProvidedValue{Value: value, FirstTurn: turn, LastTurn: turn}
		} else {
			if normalize(existing.Value) != normalize(value) && t.contradicts(field, value) {
				t.addAnomaly(Anomaly{
					Type:        AnomalyContradiction,
					Severity:    schemas.SeverityHigh,
					Turn:        turn,
					Description: "caller provided a different value for an already-provided field",
					Context: map[string]any{
						"field":         string(field),
						"original":      existing.Value,
						"original_turn": existing.FirstTurn,
						"new":           value,
					},
				})
			}
			existing.Value = value
			existing.LastTurn = turn
		}

		if isChildField(field) {
			t.recordChildField(field, value)
		}
	}
}

// contradicts reports whether a changed value is a genuine contradiction.
// Child-specific fields compare against the active child's own record: a
// value held by a different sibling is a context switch, not a
// contradiction.
func (t *Tracker) contradicts(field schemas.DataField, value string) bool {
	if !isChildField(field) {
		return true
	}
	child := t.children[t.activeChild]
	if child == nil {
		return false
	}
	prev, ok := child.Fields[field]
	return ok && normalize(prev) != normalize(value)
}

// SetActiveChild switches which child subsequent child-specific fields are
// recorded against.
func (t *Tracker) SetActiveChild(index int) {
	if index >= 0 {
		t.activeChild = index
	}
}

func (t *Tracker) recordChildField(field schemas.DataField, value string) {
	child := t.children[t.activeChild]
	if child == nil {
		child = &ChildContext{Index: t.activeChild, Fields: make(map[schemas.DataField]string)}
		t.children[t.activeChild] = child
	}
	child.Fields[field] = value

	switch field {
	case schemas.FieldChildName:
		child.Name = value
	case schemas.FieldChildDOB:
		child.DOB = value
		if age, ok := ageFromDOB(value, time.Now()); ok {
			child.Age = age
			child.Fields[schemas.FieldChildAge] = strconv.Itoa(age)
		}
	}
}

// inferRepeatReason inspects the last few turns to explain a repeated
// request, in fixed precedence order.
func (t *Tracker) inferRepeatReason() RepeatReason {
	if u := t.lastUserTurn(); u != nil {
		if u.unclear {
			return RepeatClarificationNeeded
		}
		if u.correction {
			return RepeatUserCorrection
		}
	}

	n := len(t.agentTurns)
	if n >= 2 {
		prev := t.agentTurns[n-2]
		if prev.childIndex != t.activeChild {
			return RepeatContextSwitch
		}
		if prev.category == schemas.CategoryConfirmOrDeny {
			return RepeatAgentConfirmation
		}
	}
	return RepeatUnknown
}

func (t *Tracker) lastUserTurn() *userTurnRecord {
	if len(t.userTurns) == 0 {
		return nil
	}
	return &t.userTurns[len(t.userTurns)-1]
}

// -- Read accessors --

// Request returns the request history for a field, or nil.
func (t *Tracker) Request(field schemas.DataField) *FieldRequest {
	return t.requests[field]
}

// Provided returns the recorded value for a field, or nil.
func (t *Tracker) Provided(field schemas.DataField) *ProvidedValue {
	return t.provided[field]
}

// ProvidedCount returns how many distinct fields have been provided.
func (t *Tracker) ProvidedCount() int { return len(t.provided) }

// Child returns the accumulated context for a child index, or nil.
func (t *Tracker) Child(index int) *ChildContext { return t.children[index] }

// Anomalies returns all detected anomalies in detection order.
func (t *Tracker) Anomalies() []Anomaly { return t.anomalies }

// Terminal reports the first observed terminal state, if any.
func (t *Tracker) Terminal() (schemas.TerminalState, int, bool) {
	return t.terminalState, t.terminalTurn, t.terminalState != ""
}

// -- Helpers --

var hedgeMarkers = []string{"um", "uh", "not sure", "maybe", "i think", "i guess", "hmm"}

var correctionMarkers = []string{"actually", "wait", "no,", "sorry, i meant"}

func containsAny(lowered string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// normalize strips formatting so "555-0134" and "555 0134" compare equal.
func normalize(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch r {
		case ' ', '\t', '-', '(', ')', '.', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isChildField(field schemas.DataField) bool {
	switch field {
	case schemas.FieldChildName, schemas.FieldChildDOB, schemas.FieldChildAge,
		schemas.FieldSpecialNeeds, schemas.FieldNewPatient:
		return true
	}
	return false
}

var dobLayouts = []string{"2006-01-02", "01/02/2006", "January 2, 2006", "Jan 2, 2006", "2 January 2006"}

func ageFromDOB(raw string, now time.Time) (int, bool) {
	for _, layout := range dobLayouts {
		dob, err := time.Parse(layout, strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		years := now.Year() - dob.Year()
		if now.YearDay() < dob.YearDay() {
			years--
		}
		if years < 0 {
			years = 0
		}
		return years, true
	}
	return 0, false
}

// classificationPhase maps a classification onto a coarse flow phase, used
// only for stuck detection inside this tracker.
func classificationPhase(res schemas.ClassificationResult) schemas.FlowState {
	switch res.TerminalState {
	case schemas.TerminalBookingConfirmed:
		return schemas.FlowConfirmation
	case schemas.TerminalTransferInitiated:
		return schemas.FlowTransfer
	case schemas.TerminalConversationEnded:
		return schemas.FlowEnded
	}

	for _, field := range res.DataFields {
		switch field {
		case schemas.FieldCallerName, schemas.FieldCallerPhone, schemas.FieldCallerEmail:
			return schemas.FlowCollectingParent
		case schemas.FieldChildName, schemas.FieldChildDOB, schemas.FieldChildAge:
			return schemas.FlowCollectingChild
		case schemas.FieldInsuranceProvider, schemas.FieldInsuranceID, schemas.FieldCardReminder:
			return schemas.FlowCollectingInsurance
		case schemas.FieldSpecialNeeds, schemas.FieldNewPatient, schemas.FieldReasonForVisit:
			return schemas.FlowCollectingHistory
		case schemas.FieldAppointmentDate, schemas.FieldAppointmentTime,
			schemas.FieldPreferredDay, schemas.FieldPreferredTime, schemas.FieldLocation:
			return schemas.FlowScheduling
		}
	}

	if res.Category == schemas.CategorySelectFromOptions || res.Category == schemas.CategoryExpressPreference {
		return schemas.FlowScheduling
	}
	return schemas.FlowGreeting
}
