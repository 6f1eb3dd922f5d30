package schemas

// Category is the top-level label describing what the agent under test is
// doing with a given utterance: asking for data, asking for confirmation,
// offering choices, and so on.
type Category string

const (
	CategoryProvideData       Category = "provide_data"
	CategoryConfirmOrDeny     Category = "confirm_or_deny"
	CategorySelectFromOptions Category = "select_from_options"
	CategoryAcknowledge       Category = "acknowledge"
	CategoryClarifyRequest    Category = "clarify_request"
	CategoryExpressPreference Category = "express_preference"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryProvideData, CategoryConfirmOrDeny, CategorySelectFromOptions,
		CategoryAcknowledge, CategoryClarifyRequest, CategoryExpressPreference:
		return true
	}
	return false
}

// TerminalState signals that the conversation has reached a definitive
// endpoint. TerminalNone means the conversation continues.
type TerminalState string

const (
	TerminalNone              TerminalState = "none"
	TerminalBookingConfirmed  TerminalState = "booking_confirmed"
	TerminalTransferInitiated TerminalState = "transfer_initiated"
	TerminalConversationEnded TerminalState = "conversation_ended"
	TerminalError             TerminalState = "error_terminal"
)

// Valid reports whether t is one of the known terminal states.
func (t TerminalState) Valid() bool {
	switch t {
	case TerminalNone, TerminalBookingConfirmed, TerminalTransferInitiated,
		TerminalConversationEnded, TerminalError:
		return true
	}
	return false
}

// ConfirmationSubject tags what a confirm-or-deny question is actually about,
// so the caller simulator can pick the right answer.
type ConfirmationSubject string

const (
	SubjectGeneral           ConfirmationSubject = "general"
	SubjectBooking           ConfirmationSubject = "booking"
	SubjectWantsAddress      ConfirmationSubject = "wants_address"
	SubjectAnythingElse      ConfirmationSubject = "anything_else"
	SubjectCallScope         ConfirmationSubject = "call_scope"
	SubjectSchedulingIntent  ConfirmationSubject = "scheduling_intent"
	SubjectPreviousVisit     ConfirmationSubject = "previous_visit"
	SubjectPreviousTreatment ConfirmationSubject = "previous_treatment"
	SubjectSpecialNeeds      ConfirmationSubject = "special_needs"
)

// Valid reports whether s is one of the known confirmation subjects.
func (s ConfirmationSubject) Valid() bool {
	switch s {
	case SubjectGeneral, SubjectBooking, SubjectWantsAddress, SubjectAnythingElse,
		SubjectCallScope, SubjectSchedulingIntent, SubjectPreviousVisit,
		SubjectPreviousTreatment, SubjectSpecialNeeds:
		return true
	}
	return false
}

// ExpectedAnswer hints which polarity of answer the agent's question expects.
type ExpectedAnswer string

const (
	AnswerYes    ExpectedAnswer = "yes"
	AnswerNo     ExpectedAnswer = "no"
	AnswerEither ExpectedAnswer = "either"
)

// Valid reports whether a is one of the known answer hints.
func (a ExpectedAnswer) Valid() bool {
	return a == AnswerYes || a == AnswerNo || a == AnswerEither
}

// DataField identifies a collectable datum the conversation aims to gather.
type DataField string

const (
	FieldCallerName        DataField = "caller_name"
	FieldCallerPhone       DataField = "caller_phone"
	FieldCallerEmail       DataField = "caller_email"
	FieldChildName         DataField = "child_name"
	FieldChildDOB          DataField = "child_dob"
	FieldChildAge          DataField = "child_age"
	FieldInsuranceProvider DataField = "insurance_provider"
	FieldInsuranceID       DataField = "insurance_id"
	FieldAppointmentDate   DataField = "appointment_date"
	FieldAppointmentTime   DataField = "appointment_time"
	FieldPreferredTime     DataField = "preferred_time"
	FieldPreferredDay      DataField = "preferred_day"
	FieldLocation          DataField = "location"
	FieldReasonForVisit    DataField = "reason_for_visit"
	FieldSpecialNeeds      DataField = "special_needs"
	FieldCardReminder      DataField = "card_reminder"
	FieldNewPatient        DataField = "new_patient"
	FieldUnknown           DataField = "unknown"
)

// KnownDataFields enumerates every valid DataField. The classifier's
// sanitizer uses it to rescue LLM outputs that put a field name where a
// confirmation subject belongs.
var KnownDataFields = map[DataField]struct{}{
	FieldCallerName: {}, FieldCallerPhone: {}, FieldCallerEmail: {},
	FieldChildName: {}, FieldChildDOB: {}, FieldChildAge: {},
	FieldInsuranceProvider: {}, FieldInsuranceID: {},
	FieldAppointmentDate: {}, FieldAppointmentTime: {},
	FieldPreferredTime: {}, FieldPreferredDay: {}, FieldLocation: {},
	FieldReasonForVisit: {}, FieldSpecialNeeds: {}, FieldCardReminder: {},
	FieldNewPatient: {}, FieldUnknown: {},
}

// Valid reports whether f is one of the known data fields.
func (f DataField) Valid() bool {
	_, ok := KnownDataFields[f]
	return ok
}

// ClassificationResult is the structured intent derived from a single agent
// utterance. It is created fresh per classification call and immutable once
// returned.
type ClassificationResult struct {
	Category            Category            `json:"category"`
	Confidence          float64             `json:"confidence"`
	DataFields          []DataField         `json:"data_fields,omitempty"`
	ConfirmationSubject ConfirmationSubject `json:"confirmation_subject,omitempty"`
	ExpectedAnswer      ExpectedAnswer      `json:"expected_answer,omitempty"`
	Options             []string            `json:"options,omitempty"`
	TerminalState       TerminalState       `json:"terminal_state"`
	BookingMentioned    bool                `json:"booking_mentioned"`
	TransferMentioned   bool                `json:"transfer_mentioned"`
	ConfirmedThisTurn   bool                `json:"confirmed_this_turn"`
	Reasoning           string              `json:"reasoning,omitempty"`
}
