package schemas

import "time"

// GoalType selects the evaluation strategy for a declared goal.
type GoalType string

const (
	GoalDataCollection     GoalType = "data_collection"
	GoalBookingConfirmed   GoalType = "booking_confirmed"
	GoalTransferInitiated  GoalType = "transfer_initiated"
	GoalConversationEnded  GoalType = "conversation_ended"
	GoalCustom             GoalType = "custom"
)

// GoalContext is the read-only snapshot a custom goal predicate evaluates
// against.
type GoalContext struct {
	CollectedFields   map[DataField]string
	BookingConfirmed  bool
	TransferInitiated bool
	TurnCount         int
	Elapsed           time.Duration
	FlowState         FlowState
}

// Goal is a declared success condition for a test case. Declared once per
// test case and read-only during execution.
type Goal struct {
	ID             string      `json:"id"`
	Type           GoalType    `json:"type"`
	Description    string      `json:"description,omitempty"`
	RequiredFields []DataField `json:"required_fields,omitempty"`
	Required       bool        `json:"required"`

	// Custom is the optional success predicate for GoalCustom goals. When
	// nil the evaluator falls back to id-substring heuristics and finally a
	// forward-progress check.
	Custom func(GoalContext) bool `json:"-"`
}

// Severity grades how seriously a constraint violation counts against the
// final verdict. A critical violation fails the test outright.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ConstraintType selects the check applied to a declared constraint.
type ConstraintType string

const (
	ConstraintMustHappen    ConstraintType = "must_happen"
	ConstraintMustNotHappen ConstraintType = "must_not_happen"
	ConstraintMaxTurns      ConstraintType = "max_turns"
	ConstraintMaxTime       ConstraintType = "max_time"
)

// Constraint is a declared invariant contributing to the final verdict.
type Constraint struct {
	ID          string         `json:"id"`
	Type        ConstraintType `json:"type"`
	Description string         `json:"description,omitempty"`
	Severity    Severity       `json:"severity"`

	// Predicate applies to must_happen / must_not_happen constraints.
	Predicate func(GoalContext) bool `json:"-"`

	// MaxTurns / MaxDuration apply to max_turns / max_time constraints.
	MaxTurns    int           `json:"max_turns,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty"`
}

// GoalResult captures the outcome of evaluating a single goal.
type GoalResult struct {
	GoalID        string      `json:"goal_id"`
	Type          GoalType    `json:"type"`
	Required      bool        `json:"required"`
	Passed        bool        `json:"passed"`
	MissingFields []DataField `json:"missing_fields,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

// ConstraintViolation records a failed constraint. Turn is aligned to the
// interleaved transcript where one internal turn spans two messages.
type ConstraintViolation struct {
	ConstraintID string         `json:"constraint_id"`
	Type         ConstraintType `json:"type"`
	Severity     Severity       `json:"severity"`
	Description  string         `json:"description"`
	Turn         int            `json:"turn,omitempty"`
}

// GoalTestResult aggregates the terminal verdict for one conversation.
type GoalTestResult struct {
	SessionID   string                `json:"session_id"`
	Passed      bool                  `json:"passed"`
	Goals       []GoalResult          `json:"goals"`
	Violations  []ConstraintViolation `json:"violations,omitempty"`
	Summary     string                `json:"summary"`
	FinalState  ProgressSnapshot      `json:"final_state"`
	Transcript  Transcript            `json:"transcript"`
	Duration    time.Duration         `json:"duration"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
}
