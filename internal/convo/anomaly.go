package convo

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// AnomalyType names a conversational anomaly the tracker can detect.
type AnomalyType string

const (
	AnomalyUnexpectedTransfer   AnomalyType = "unexpected_transfer"
	AnomalyPrematureBooking     AnomalyType = "premature_booking"
	AnomalyStuckConversation    AnomalyType = "stuck_conversation"
	AnomalyLoopDetected         AnomalyType = "loop_detected"
	AnomalyFieldAlreadyProvided AnomalyType = "field_already_provided"
	AnomalyContradiction        AnomalyType = "contradiction"
)

// Anomaly is one detected irregularity. Anomalies are appended, never
// removed.
type Anomaly struct {
	Type        AnomalyType      `json:"type"`
	Severity    schemas.Severity `json:"severity"`
	Turn        int              `json:"turn"`
	Description string           `json:"description"`
	Context     map[string]any   `json:"context,omitempty"`
}

// Issue converts the anomaly into the snapshot issue shape the evaluator
// and the reporters consume.
func (a Anomaly) Issue() schemas.Issue {
	return schemas.Issue{
		Type:        schemas.IssueType(a.Type),
		Severity:    a.Severity,
		Turn:        a.Turn,
		Description: a.Description,
	}
}

// Thresholds for the early-transfer check.
const (
	earlyTransferTurn   = 5
	earlyTransferFields = 3
)

// detectAnomalies runs the independent per-agent-turn checks.
func (t *Tracker) detectAnomalies(turn int, res schemas.ClassificationResult) {
	t.checkUnexpectedTransfer(turn, res)
	t.checkPrematureBooking(turn, res)
	t.checkStuckConversation(turn)
	t.checkLoopDetected(turn)
	t.checkFieldAlreadyProvided(turn, res)
}

func (t *Tracker) checkUnexpectedTransfer(turn int, res schemas.ClassificationResult) {
	if res.TerminalState != schemas.TerminalTransferInitiated {
		return
	}
	if turn < earlyTransferTurn && len(t.provided) < earlyTransferFields {
		t.addAnomaly(Anomaly{
			Type:        AnomalyUnexpectedTransfer,
			Severity:    schemas.SeverityHigh,
			Turn:        turn,
			Description: "transfer initiated early with almost nothing collected",
			Context: map[string]any{
				"turn":             turn,
				"fields_collected": len(t.provided),
			},
		})
	}
}

// requiredBeforeBooking are the fields a booking should never complete
// without.
var requiredBeforeBooking = []schemas.DataField{
	schemas.FieldCallerName,
	schemas.FieldCallerPhone,
	schemas.FieldChildName,
}

func (t *Tracker) checkPrematureBooking(turn int, res schemas.ClassificationResult) {
	if res.TerminalState != schemas.TerminalBookingConfirmed && !res.ConfirmedThisTurn {
		return
	}
	var missing []string
	for _, field := range requiredBeforeBooking {
		if t.provided[field] == nil {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		t.addAnomaly(Anomaly{
			Type:        AnomalyPrematureBooking,
			Severity:    schemas.SeverityCritical,
			Turn:        turn,
			Description: "booking confirmed before required fields were collected",
			Context:     map[string]any{"missing_fields": missing},
		})
	}
}

func (t *Tracker) checkStuckConversation(turn int) {
	threshold := t.cfg.StuckThreshold
	if t.stuckFlagged || turn < threshold || len(t.provided) > 0 || len(t.agentTurns) < threshold {
		return
	}
	recent := t.agentTurns[len(t.agentTurns)-threshold:]
	phase := recent[0].phase
	for _, r := range recent[1:] {
		if r.phase != phase {
			return
		}
	}
	t.stuckFlagged = true
	t.addAnomaly(Anomaly{
		Type:        AnomalyStuckConversation,
		Severity:    schemas.SeverityHigh,
		Turn:        turn,
		Description: "conversation stuck in one phase with nothing collected",
		Context: map[string]any{
			"phase":       string(phase),
			"stuck_turns": threshold,
		},
	})
}

func (t *Tracker) checkLoopDetected(turn int) {
	n := len(t.agentTurns)
	if n < 4 {
		return
	}
	last := t.agentTurns[n-4:]
	// ABAB: turn[i] matches turn[i+2] for both i=0 and i=1.
	if last[0].category == last[2].category && last[1].category == last[3].category &&
		last[0].category != last[1].category {
		t.addAnomaly(Anomaly{
			Type:        AnomalyLoopDetected,
			Severity:    schemas.SeverityMedium,
			Turn:        turn,
			Description: "agent alternating between the same two intents",
			Context: map[string]any{
				"pattern": []string{
					string(last[0].category), string(last[1].category),
					string(last[2].category), string(last[3].category),
				},
			},
		})
	}
}

func (t *Tracker) checkFieldAlreadyProvided(turn int, res schemas.ClassificationResult) {
	for _, field := range res.DataFields {
		value := t.provided[field]
		if value == nil {
			continue
		}
		if turn-value.LastTurn <= 2 {
			t.addAnomaly(Anomaly{
				Type:        AnomalyFieldAlreadyProvided,
				Severity:    schemas.SeverityMedium,
				Turn:        turn,
				Description: "agent asked for a field the caller just provided",
				Context: map[string]any{
					"field":         string(field),
					"provided_turn": value.LastTurn,
				},
			})
		}
	}
}

func (t *Tracker) addAnomaly(a Anomaly) {
	t.anomalies = append(t.anomalies, a)
	t.logger.Debug("Anomaly detected",
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.Int("turn", a.Turn))
}
