package responder

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// fieldValue resolves one requested field against the persona's data
// inventory, phrased as the caller would say it. The bool reports whether the
// field resolved at all.
func (e *Engine) fieldValue(field schemas.DataField, tctx TurnContext) (string, bool) {
	child := e.persona.ActiveChild(tctx.ActiveChild)

	switch field {
	case schemas.FieldCallerName:
		return "My name is " + e.persona.Parent.Name + ".", true
	case schemas.FieldCallerPhone:
		return "My number is " + e.persona.Parent.Phone + ".", true
	case schemas.FieldCallerEmail:
		return "It's " + e.persona.Parent.Email + ".", true
	case schemas.FieldChildName:
		return "Her name is " + child.Name + ".", child.Name != ""
	case schemas.FieldChildDOB:
		if child.DOB.IsZero() {
			return "", false
		}
		return "She was born on " + child.DOB.Format("January 2, 2006") + ".", true
	case schemas.FieldChildAge:
		if child.DOB.IsZero() {
			return "", false
		}
		return fmt.Sprintf("She's %d years old.", child.Age(e.now())), true
	case schemas.FieldInsuranceProvider:
		return "We have " + e.persona.Insurance.Provider + ".", e.persona.Insurance.Provider != ""
	case schemas.FieldInsuranceID:
		return "The member ID is " + e.persona.Insurance.MemberID + ".", e.persona.Insurance.MemberID != ""
	case schemas.FieldReasonForVisit:
		return e.persona.CallReason + ".", e.persona.CallReason != ""
	case schemas.FieldSpecialNeeds:
		return e.specialNeedsAnswer(child), true
	case schemas.FieldCardReminder:
		return "I'll make sure to bring the insurance card.", true
	case schemas.FieldNewPatient:
		if child.NewPatient {
			return "Yes, this would be her first visit.", true
		}
		return "No, she's been seen there before.", true
	case schemas.FieldPreferredTime:
		if e.persona.Prefs.TimeOfDay == "" {
			return "", false
		}
		return capitalize(e.persona.Prefs.TimeOfDay) + "s work best for us.", true
	case schemas.FieldPreferredDay:
		if len(e.persona.Prefs.DaysOfWeek) == 0 {
			return "", false
		}
		return strings.Join(e.persona.Prefs.DaysOfWeek, " or ") + " would be great.", true
	case schemas.FieldAppointmentDate, schemas.FieldAppointmentTime:
		if e.persona.Prefs.TimeOfDay != "" {
			return "Any " + e.persona.Prefs.TimeOfDay + " slot works for us.", true
		}
		return "We're pretty flexible.", true
	case schemas.FieldLocation:
		return "The " + e.persona.Prefs.Location + " office, please.", e.persona.Prefs.Location != ""
	}
	return "", false
}

func (e *Engine) specialNeedsAnswer(child schemas.Child) string {
	if child.SpecialNeeds != "" {
		return "Yes, actually. " + child.SpecialNeeds + "."
	}
	return "No special needs, no."
}

// fallbackRule pairs agent-utterance phrases with a responder. The list is
// scanned in order against the agent's wording, independent of the
// classifier's field list, because classification can miss a field even when
// the question's wording is unambiguous.
type fallbackRule struct {
	phrases []string
	field   schemas.DataField
}

var fallbackRules = []fallbackRule{
	{phrases: []string{"date of birth", "born", "birthday"}, field: schemas.FieldChildDOB},
	{phrases: []string{"how old", "age"}, field: schemas.FieldChildAge},
	{phrases: []string{"phone", "number to reach", "call you back"}, field: schemas.FieldCallerPhone},
	{phrases: []string{"email"}, field: schemas.FieldCallerEmail},
	{phrases: []string{"child's name", "your son", "your daughter", "patient's name"}, field: schemas.FieldChildName},
	{phrases: []string{"your name", "who am i speaking"}, field: schemas.FieldCallerName},
	{phrases: []string{"insurance"}, field: schemas.FieldInsuranceProvider},
	{phrases: []string{"special needs", "accommodations"}, field: schemas.FieldSpecialNeeds},
	{phrases: []string{"reason", "calling about", "what brings"}, field: schemas.FieldReasonForVisit},
}

// smartFallback matches the agent's own wording against the fallback table
// and answers from the persona. Returns false when nothing matches.
func (e *Engine) smartFallback(tctx TurnContext) (string, bool) {
	lowered := strings.ToLower(tctx.AgentUtterance)
	for _, rule := range fallbackRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lowered, phrase) {
				if value, ok := e.fieldValue(rule.field, tctx); ok {
					return value, true
				}
			}
		}
	}
	return "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// now is injectable so age phrasing stays deterministic in tests.
func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
