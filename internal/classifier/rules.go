package classifier

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// pattern is one match alternative within a rule. Every element must appear
// as a substring of the lowercased utterance for the pattern to match, which
// lets a single rule require two phrases in one sentence (e.g. an insurance
// card reminder combined with a special-needs question).
type pattern []string

func (p pattern) matches(lowered string) bool {
	for _, part := range p {
		if !strings.Contains(lowered, part) {
			return false
		}
	}
	return len(p) > 0
}

func (p pattern) String() string { return strings.Join(p, " + ") }

// rule is one entry in the hand-authored tier-1 table. Rules are data, not
// control flow: the matcher scans them in priority order and the first
// matching pattern wins outright.
type rule struct {
	name       string
	category   schemas.Category
	patterns   []pattern
	confidence float64
	priority   int

	fields    []schemas.DataField
	subject   schemas.ConfirmationSubject
	expected  schemas.ExpectedAnswer
	terminal  schemas.TerminalState
	mentions  mentionFlags
	confirmed bool

	// extract optionally derives extra structured data from the matched
	// utterance, e.g. the list of offered appointment slots.
	extract func(utterance string, res *schemas.ClassificationResult)
}

type mentionFlags struct {
	booking  bool
	transfer bool
}

// followUpPatterns are re-scanned against booking-confirmed utterances: a
// trailing question must not be swallowed by the terminal classification.
var followUpPatterns = []struct {
	pattern pattern
	subject schemas.ConfirmationSubject
}{
	{pattern{"would you like the address"}, schemas.SubjectWantsAddress},
	{pattern{"do you want the address"}, schemas.SubjectWantsAddress},
	{pattern{"need the address"}, schemas.SubjectWantsAddress},
	{pattern{"need directions"}, schemas.SubjectWantsAddress},
	{pattern{"anything else"}, schemas.SubjectAnythingElse},
	{pattern{"is there anything i can"}, schemas.SubjectAnythingElse},
	{pattern{"any other questions"}, schemas.SubjectAnythingElse},
}

// defaultRules builds the tier-1 rule table, stable-sorted by priority
// descending. Ties keep declaration order; several priorities rely on it.
func defaultRules() []rule {
	rules := []rule{
		// False-positive guards. In-progress phrasing mentions booking but
		// must never be read as a completed one, so these sit above every
		// terminal rule.
		{
			name:     "booking_in_progress_guard",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"let me check"},
				{"let me verify"},
				{"let me look"},
				{"let me see what"},
				{"let me pull up"},
				{"checking availability"},
				{"i'll schedule"},
				{"i will schedule"},
				{"i'm scheduling"},
				{"i am scheduling"},
				{"i'll get that scheduled"},
				{"one moment while"},
				{"just a moment while"},
			},
			confidence: 0.85,
			priority:   100,
			mentions:   mentionFlags{booking: true},
		},

		// Terminal states. Past-tense phrasing only; future tense is caught
		// by the guard above.
		{
			name:     "booking_confirmed",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"has been successfully scheduled"},
				{"has been scheduled"},
				{"has been booked"},
				{"appointment is booked"},
				{"appointment is confirmed"},
				{"is confirmed for"},
				{"successfully booked"},
				{"i've scheduled", "for"},
				{"i have scheduled", "for"},
				{"you're all set for"},
				{"we've got you down for"},
			},
			confidence: 0.95,
			priority:   95,
			terminal:   schemas.TerminalBookingConfirmed,
			mentions:   mentionFlags{booking: true},
			confirmed:  true,
		},
		{
			name:     "transfer_initiated",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"transfer you"},
				{"transferring you"},
				{"connecting you"},
				{"put you through"},
				{"hand you over to"},
			},
			confidence: 0.95,
			priority:   95,
			terminal:   schemas.TerminalTransferInitiated,
			mentions:   mentionFlags{transfer: true},
		},
		{
			name:     "conversation_ended",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"thanks for calling"},
				{"thank you for calling"},
				{"have a great day"},
				{"have a wonderful day"},
				{"goodbye"},
				{"bye for now"},
			},
			confidence: 0.9,
			priority:   94,
			terminal:   schemas.TerminalConversationEnded,
		},
		{
			name:     "error_terminal",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"technical difficulties"},
				{"system is currently down"},
				{"unable to process your request"},
			},
			confidence: 0.9,
			priority:   90,
			terminal:   schemas.TerminalError,
		},

		// The combined reminder-plus-question rule sits above the single
		// field rules so both fields land in one classification.
		{
			name:     "card_reminder_with_special_needs",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"insurance card", "special needs"},
				{"bring your card", "special needs"},
				{"insurance card", "accommodations"},
			},
			confidence: 0.9,
			priority:   80,
			fields:     []schemas.DataField{schemas.FieldSpecialNeeds, schemas.FieldCardReminder},
		},

		// Confirm-or-deny subjects.
		{
			name:     "confirm_wants_address",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"would you like the address"},
				{"do you want the address"},
				{"need the address"},
				{"need directions"},
			},
			confidence: 0.9,
			priority:   75,
			subject:    schemas.SubjectWantsAddress,
			expected:   schemas.AnswerEither,
		},
		{
			name:     "confirm_anything_else",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"anything else"},
				{"any other questions"},
				{"is there anything i can"},
			},
			confidence: 0.85,
			priority:   75,
			subject:    schemas.SubjectAnythingElse,
			expected:   schemas.AnswerEither,
		},
		{
			name:     "confirm_call_scope",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"calling about orthodontic"},
				{"regarding orthodontic"},
				{"about braces"},
				{"an orthodontic appointment"},
			},
			confidence: 0.85,
			priority:   74,
			subject:    schemas.SubjectCallScope,
			expected:   schemas.AnswerYes,
		},
		{
			name:     "confirm_scheduling_intent",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"would you like to schedule"},
				{"do you want to book"},
				{"shall we schedule"},
				{"like to set up an appointment"},
			},
			confidence: 0.85,
			priority:   74,
			subject:    schemas.SubjectSchedulingIntent,
			expected:   schemas.AnswerYes,
			mentions:   mentionFlags{booking: true},
		},
		{
			name:     "confirm_previous_visit",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"been to our office before"},
				{"visited us before"},
				{"been seen here before"},
			},
			confidence: 0.85,
			priority:   73,
			subject:    schemas.SubjectPreviousVisit,
			expected:   schemas.AnswerEither,
		},
		{
			name:     "confirm_previous_treatment",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"had braces before"},
				{"previous orthodontic treatment"},
				{"any prior treatment"},
				{"treated by an orthodontist before"},
			},
			confidence: 0.85,
			priority:   73,
			subject:    schemas.SubjectPreviousTreatment,
			expected:   schemas.AnswerEither,
		},
		{
			name:     "confirm_special_needs",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"any special needs"},
				{"special accommodations"},
			},
			confidence: 0.85,
			priority:   72,
			subject:    schemas.SubjectSpecialNeeds,
			expected:   schemas.AnswerEither,
		},
		{
			name:     "confirm_general",
			category: schemas.CategoryConfirmOrDeny,
			patterns: []pattern{
				{"is that correct"},
				{"did i get that right"},
				{"just to confirm"},
				{"can you confirm"},
			},
			confidence: 0.8,
			priority:   70,
			subject:    schemas.SubjectGeneral,
			expected:   schemas.AnswerYes,
		},

		// Offered options.
		{
			name:     "select_from_options",
			category: schemas.CategorySelectFromOptions,
			patterns: []pattern{
				{"would you prefer", " or "},
				{"we have", " or "},
				{"available", " or "},
				{"works better", " or "},
			},
			confidence: 0.85,
			priority:   65,
			extract: func(utterance string, res *schemas.ClassificationResult) {
				res.Options = extractOptions(utterance)
			},
		},

		// Data-field requests.
		{
			name:     "ask_caller_name",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"your name"},
				{"may i have your name"},
				{"who am i speaking"},
				{"name of the parent"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldCallerName},
		},
		{
			name:     "ask_caller_phone",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"phone number"},
				{"callback number"},
				{"best number to reach"},
				{"number we can reach"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldCallerPhone},
		},
		{
			name:     "ask_caller_email",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"email address"},
				{"your email"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldCallerEmail},
		},
		{
			name:     "ask_child_name",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"child's name"},
				{"patient's name"},
				{"name of your child"},
				{"who is the appointment for"},
				{"who will be coming in"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldChildName},
		},
		{
			name:     "ask_child_dob",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"date of birth"},
				{"birth date"},
				{"birthdate"},
				{"when was", "born"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldChildDOB},
		},
		{
			name:     "ask_child_age",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"how old is"},
				{"child's age"},
			},
			confidence: 0.85,
			priority:   59,
			fields:     []schemas.DataField{schemas.FieldChildAge},
		},
		{
			name:     "ask_insurance",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"insurance provider"},
				{"insurance information"},
				{"who is your insurance"},
				{"what insurance"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldInsuranceProvider},
		},
		{
			name:     "ask_insurance_id",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"member id"},
				{"policy number"},
				{"insurance id"},
			},
			confidence: 0.9,
			priority:   60,
			fields:     []schemas.DataField{schemas.FieldInsuranceID},
		},
		{
			name:     "ask_new_patient",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"new patient"},
				{"first visit"},
				{"been here before"},
			},
			confidence: 0.85,
			priority:   58,
			fields:     []schemas.DataField{schemas.FieldNewPatient},
		},
		{
			name:     "ask_reason_for_visit",
			category: schemas.CategoryProvideData,
			patterns: []pattern{
				{"reason for your call"},
				{"reason for the visit"},
				{"how can i help"},
				{"what can i do for you"},
			},
			confidence: 0.8,
			priority:   55,
			fields:     []schemas.DataField{schemas.FieldReasonForVisit},
		},

		// Preference questions without concrete options.
		{
			name:     "ask_preference",
			category: schemas.CategoryExpressPreference,
			patterns: []pattern{
				{"what day works"},
				{"what time works"},
				{"when would you like"},
				{"prefer morning or afternoon"},
				{"which location"},
			},
			confidence: 0.85,
			priority:   55,
			fields:     []schemas.DataField{schemas.FieldPreferredDay, schemas.FieldPreferredTime},
		},

		// Bare acknowledgments.
		{
			name:     "acknowledge",
			category: schemas.CategoryAcknowledge,
			patterns: []pattern{
				{"thank you"},
				{"got it"},
				{"perfect"},
				{"one moment"},
				{"please hold"},
				{"bear with me"},
			},
			confidence: 0.7,
			priority:   40,
			extract: func(utterance string, res *schemas.ClassificationResult) {
				lowered := strings.ToLower(utterance)
				if strings.Contains(lowered, "book") || strings.Contains(lowered, "schedul") {
					res.BookingMentioned = true
				}
			},
		},

		// Catch-all: any remaining question is a request for clarification.
		{
			name:       "clarify_catch_all",
			category:   schemas.CategoryClarifyRequest,
			patterns:   []pattern{{"?"}},
			confidence: 0.4,
			priority:   20,
		},
	}

	// Stable sort preserves declaration order among equal priorities, which
	// several of the hand-tuned values above depend on.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].priority > rules[j].priority
	})
	return rules
}

// extractOptions pulls offered choices out of an utterance that joins them
// with "or". Commas split additional alternatives; filler before a colon or
// the verb "have" is discarded.
func extractOptions(utterance string) []string {
	lowered := strings.ToLower(utterance)

	// Narrow to the clause containing the alternatives.
	if idx := strings.Index(lowered, ":"); idx >= 0 {
		lowered = lowered[idx+1:]
	} else if idx := strings.Index(lowered, "we have "); idx >= 0 {
		lowered = lowered[idx+len("we have "):]
	} else if idx := strings.Index(lowered, "prefer "); idx >= 0 {
		lowered = lowered[idx+len("prefer "):]
	}

	lowered = strings.NewReplacer("?", "", ".", "", "!", "").Replace(lowered)
	lowered = strings.ReplaceAll(lowered, " or ", ",")

	parts := strings.Split(lowered, ",")
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || len(p) < 2 || isOptionFiller(p) {
			continue
		}
		options = append(options, p)
	}
	return options
}

// isOptionFiller drops question clauses that ride along in the same sentence
// as the offered alternatives.
func isOptionFiller(clause string) bool {
	for _, marker := range []string{"which", "what", "prefer", "works better", "would you", "how about"} {
		if strings.Contains(clause, marker) {
			return true
		}
	}
	return false
}
