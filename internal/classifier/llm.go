package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/llmutil"
)

// llmTier is the second classification tier. It is consulted only below the
// confidence threshold and its failures always fall back to tier-1.
type llmTier struct {
	provider schemas.LLMProvider
	window   int
	logger   *zap.Logger
}

func newLLMTier(provider schemas.LLMProvider, window int, logger *zap.Logger) *llmTier {
	if window <= 0 {
		window = 4
	}
	return &llmTier{
		provider: provider,
		window:   window,
		logger:   logger.Named("llm_tier"),
	}
}

// llmClassification mirrors the JSON shape requested from the model. All
// enum-like fields arrive as plain strings and are sanitized afterwards.
type llmClassification struct {
	Category            string   `json:"category"`
	Confidence          float64  `json:"confidence"`
	DataFields          []string `json:"data_fields"`
	ConfirmationSubject string   `json:"confirmation_subject"`
	ExpectedAnswer      string   `json:"expected_answer"`
	Options             []string `json:"options"`
	TerminalState       string   `json:"terminal_state"`
	BookingMentioned    bool     `json:"booking_mentioned"`
	TransferMentioned   bool     `json:"transfer_mentioned"`
	Reasoning           string   `json:"reasoning"`
}

const classifySystemPrompt = `You classify a single utterance spoken by an appointment-scheduling assistant during a phone call.
Respond with exactly one JSON object:
{"category": "...", "confidence": 0.0-1.0, "data_fields": [...], "confirmation_subject": "...", "expected_answer": "yes|no|either", "options": [...], "terminal_state": "...", "booking_mentioned": bool, "transfer_mentioned": bool, "reasoning": "..."}

category is one of: provide_data, confirm_or_deny, select_from_options, acknowledge, clarify_request, express_preference.
terminal_state is one of: none, booking_confirmed, transfer_initiated, conversation_ended, error_terminal.

Terminal-state rules - read the tense carefully:
- "has been scheduled", "is confirmed", "you're all set" (past/perfect tense) -> booking_confirmed.
- "let me schedule", "I'll book that", "checking availability" (future/in-progress) -> none. Never mark an in-progress booking as confirmed.
- Announcing a transfer that is happening now -> transfer_initiated; merely offering one -> none.

data_fields names the data the assistant is asking the caller for, from:
caller_name, caller_phone, caller_email, child_name, child_dob, child_age, insurance_provider, insurance_id, appointment_date, appointment_time, preferred_time, preferred_day, location, reason_for_visit, special_needs, card_reminder, new_patient.`

// classify builds the fallback prompt and parses the model's answer. Any
// parse or validation failure is returned as an error so the caller keeps
// the tier-1 result.
func (l *llmTier) classify(ctx context.Context, utterance string, history schemas.Transcript, persona schemas.Persona) (schemas.ClassificationResult, error) {
	res := l.provider.Execute(ctx, schemas.ExecutionRequest{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   l.buildUserPrompt(utterance, history, persona),
		Tier:         schemas.TierFast,
		Temperature:  0.1,
		ForceJSON:    true,
	})
	if !res.Success {
		return schemas.ClassificationResult{}, fmt.Errorf("llm execution failed: %s", res.Err)
	}

	parsed, err := parseClassification(res.Content)
	if err != nil {
		l.logger.Warn("Failed to parse LLM classification",
			zap.String("raw_response", res.Content),
			zap.Error(err))
		return schemas.ClassificationResult{}, err
	}

	return sanitize(parsed), nil
}

func (l *llmTier) buildUserPrompt(utterance string, history schemas.Transcript, persona schemas.Persona) string {
	var b strings.Builder
	b.WriteString("Persona: ")
	b.WriteString(persona.Summary())
	b.WriteString("\n\nRecent conversation:\n")
	for _, turn := range history.LastN(l.window) {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Text)
	}
	fmt.Fprintf(&b, "\nClassify this assistant utterance:\n%q\n", utterance)
	b.WriteString("\nRespond with a single JSON object.")
	return b.String()
}

// parseClassification extracts and unmarshals the JSON object from the
// model's response, handling markdown fences or raw JSON.
func parseClassification(response string) (llmClassification, error) {
	parsed, err := llmutil.ParseJSONResponse[llmClassification](response)
	if err != nil {
		return llmClassification{}, err
	}
	if parsed.Category == "" {
		return llmClassification{}, fmt.Errorf("LLM response missing required 'category' field")
	}
	return *parsed, nil
}

// sanitize coerces every enum-like field to the known vocabulary. An invalid
// confirmation subject that actually names a data field is moved into the
// field list instead of being discarded; models regularly confuse "what they
// are confirming" with "what data they want".
func sanitize(parsed llmClassification) schemas.ClassificationResult {
	res := schemas.ClassificationResult{
		Confidence:        parsed.Confidence,
		Options:           parsed.Options,
		BookingMentioned:  parsed.BookingMentioned,
		TransferMentioned: parsed.TransferMentioned,
		Reasoning:         parsed.Reasoning,
	}

	if res.Confidence < 0 {
		res.Confidence = 0
	} else if res.Confidence > 1 {
		res.Confidence = 1
	}

	res.Category = schemas.Category(parsed.Category)
	if !res.Category.Valid() {
		res.Category = schemas.CategoryProvideData
	}

	res.TerminalState = schemas.TerminalState(parsed.TerminalState)
	if !res.TerminalState.Valid() {
		res.TerminalState = schemas.TerminalNone
	}
	if res.TerminalState == schemas.TerminalBookingConfirmed {
		res.BookingMentioned = true
		res.ConfirmedThisTurn = true
	}
	if res.TerminalState == schemas.TerminalTransferInitiated {
		res.TransferMentioned = true
	}

	for _, raw := range parsed.DataFields {
		field := schemas.DataField(strings.ToLower(strings.TrimSpace(raw)))
		if field.Valid() && field != schemas.FieldUnknown {
			res.DataFields = append(res.DataFields, field)
		}
	}

	subject := schemas.ConfirmationSubject(parsed.ConfirmationSubject)
	switch {
	case parsed.ConfirmationSubject == "":
		// Leave empty; only confirm_or_deny results carry a subject.
	case subject.Valid():
		res.ConfirmationSubject = subject
	case schemas.DataField(parsed.ConfirmationSubject).Valid():
		res.DataFields = append(res.DataFields, schemas.DataField(parsed.ConfirmationSubject))
		res.ConfirmationSubject = schemas.SubjectGeneral
	default:
		res.ConfirmationSubject = schemas.SubjectGeneral
	}
	if res.Category == schemas.CategoryConfirmOrDeny && res.ConfirmationSubject == "" {
		res.ConfirmationSubject = schemas.SubjectGeneral
	}

	answer := schemas.ExpectedAnswer(parsed.ExpectedAnswer)
	if answer.Valid() {
		res.ExpectedAnswer = answer
	} else if res.Category == schemas.CategoryConfirmOrDeny {
		res.ExpectedAnswer = schemas.AnswerEither
	}

	return res
}
