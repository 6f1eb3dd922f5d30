package responder

import (
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// TurnContext is the slice of conversation state the responder needs for one
// reply. It is assembled fresh by the harness each turn.
type TurnContext struct {
	AgentUtterance  string
	Turn            int
	ActiveChild     int
	BookingComplete bool
}

// Engine turns a classification plus a persona into the caller's next line.
// GenerateResponse never fails: every path degrades to a cooperative default.
// One engine is owned by exactly one conversation.
type Engine struct {
	persona   schemas.Persona
	formatter *formatter
	logger    *zap.Logger
	clock     func() time.Time
}

// NewEngine creates a response engine for one persona. The rand source seeds
// phrase variety only; decision logic never consults it.
func NewEngine(persona schemas.Persona, rng *rand.Rand, logger *zap.Logger) *Engine {
	return &Engine{
		persona:   persona,
		formatter: newFormatter(persona.Verbosity, rng),
		logger:    logger.Named("response_engine"),
	}
}

// GenerateResponse dispatches on the classification category and formats the
// result in the persona's voice. Always returns text; an uncooperative or
// empty reply would stall the agent under test.
func (e *Engine) GenerateResponse(res schemas.ClassificationResult, tctx TurnContext) string {
	var reply string
	switch res.Category {
	case schemas.CategoryProvideData:
		reply = e.provideData(res, tctx)
	case schemas.CategoryConfirmOrDeny:
		reply = e.confirmOrDeny(res, tctx)
	case schemas.CategorySelectFromOptions:
		reply = e.selectOption(res)
	case schemas.CategoryAcknowledge:
		reply = e.acknowledge(tctx)
	case schemas.CategoryClarifyRequest:
		reply = e.clarify(tctx)
	case schemas.CategoryExpressPreference:
		reply = e.expressPreference()
	default:
		reply = "Yes."
	}
	return e.formatter.format(res.Category, reply)
}

func (e *Engine) provideData(res schemas.ClassificationResult, tctx TurnContext) string {
	var parts []string
	for _, field := range res.DataFields {
		if value, ok := e.fieldValue(field, tctx); ok {
			parts = append(parts, value)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	if reply, ok := e.smartFallback(tctx); ok {
		e.logger.Debug("Smart fallback answered",
			zap.Int("turn", tctx.Turn))
		return reply
	}

	// An affirmative placeholder stalls the agent less than an uncertain one.
	return "Yes, that works for me."
}

// confirmOrDeny answers yes by default; the overrides run in fixed
// precedence order.
func (e *Engine) confirmOrDeny(res schemas.ClassificationResult, tctx TurnContext) string {
	child := e.persona.ActiveChild(tctx.ActiveChild)

	switch {
	case tctx.BookingComplete && res.ConfirmationSubject == schemas.SubjectAnythingElse:
		return "No, that's everything. Thank you!"

	case res.ConfirmationSubject == schemas.SubjectCallScope && !e.persona.OrthodonticCase:
		return "No, actually. " + e.persona.CallReason + "."

	case res.ConfirmationSubject == schemas.SubjectSchedulingIntent:
		return "Yes, I'd like to set up an appointment."

	case res.ConfirmationSubject == schemas.SubjectPreviousVisit:
		if child.NewPatient {
			return "No, this would be our first time."
		}
		return "Yes, she's been in before."

	case res.ConfirmationSubject == schemas.SubjectPreviousTreatment:
		if child.PriorTreatment {
			return "Yes, she's had some treatment already."
		}
		return "No, nothing so far."

	case res.ConfirmationSubject == schemas.SubjectSpecialNeeds:
		return e.specialNeedsAnswer(child)

	case res.ConfirmationSubject == schemas.SubjectWantsAddress:
		return "Yes, please."
	}
	return "Yes."
}

// selectOption picks from the offered list by preference: time of day first,
// then location, then day of week, else the first option.
func (e *Engine) selectOption(res schemas.ClassificationResult) string {
	if len(res.Options) == 0 {
		return "The first one works for us."
	}

	if option, ok := matchOption(res.Options, e.persona.Prefs.TimeOfDay); ok {
		return option + ", please."
	}
	if option, ok := matchOption(res.Options, e.persona.Prefs.Location); ok {
		return option + ", please."
	}
	for _, day := range e.persona.Prefs.DaysOfWeek {
		if option, ok := matchOption(res.Options, day); ok {
			return option + ", please."
		}
	}
	return res.Options[0] + " works for us."
}

func matchOption(options []string, pref string) (string, bool) {
	if pref == "" {
		return "", false
	}
	lowered := strings.ToLower(pref)
	for _, option := range options {
		if strings.Contains(strings.ToLower(option), lowered) {
			return option, true
		}
	}
	// "morning" prefers early slots even when the option is just a time.
	if lowered == "morning" || lowered == "afternoon" {
		for _, option := range options {
			if matchesDaypart(option, lowered) {
				return option, true
			}
		}
	}
	return "", false
}

func matchesDaypart(option, daypart string) bool {
	lowered := strings.ToLower(option)
	if daypart == "morning" {
		return strings.Contains(lowered, "am") || strings.Contains(lowered, "9") || strings.Contains(lowered, "10")
	}
	return strings.Contains(lowered, "pm")
}

// acknowledge phrases a receipt keyed by what the agent just shared.
func (e *Engine) acknowledge(tctx TurnContext) string {
	lowered := strings.ToLower(tctx.AgentUtterance)
	switch {
	case tctx.BookingComplete && strings.Contains(lowered, "anything else"):
		return "No, that's all. Thanks so much!"
	case strings.Contains(lowered, "scheduled") || strings.Contains(lowered, "booked") || strings.Contains(lowered, "confirmed"):
		return "Wonderful, thank you so much!"
	case strings.Contains(lowered, "address") || strings.Contains(lowered, "located"):
		return "Got it, thank you."
	case strings.Contains(lowered, "parking"):
		return "Good to know, thanks."
	}
	return "Okay."
}

func (e *Engine) clarify(tctx TurnContext) string {
	child := e.persona.ActiveChild(tctx.ActiveChild)
	if child.Name != "" {
		return "I'm calling to schedule an appointment for my child, " + child.Name + "."
	}
	return "I'm calling to schedule an appointment for my child."
}

func (e *Engine) expressPreference() string {
	prefs := e.persona.Prefs
	switch {
	case prefs.TimeOfDay != "" && len(prefs.DaysOfWeek) > 0:
		return capitalize(prefs.TimeOfDay) + "s would be best, ideally " + strings.Join(prefs.DaysOfWeek, " or ") + "."
	case prefs.TimeOfDay != "":
		return capitalize(prefs.TimeOfDay) + "s would be best for us."
	case len(prefs.DaysOfWeek) > 0:
		return strings.Join(prefs.DaysOfWeek, " or ") + " would suit us."
	}
	return "We're flexible, whatever you have open."
}
