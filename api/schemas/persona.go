package schemas

import (
	"fmt"
	"strings"
	"time"
)

// Verbosity is the persona trait controlling how much lexical padding the
// response formatter wraps around the semantic payload.
type Verbosity string

const (
	VerbosityTerse   Verbosity = "terse"
	VerbosityNormal  Verbosity = "normal"
	VerbosityVerbose Verbosity = "verbose"
)

// Parent holds the caller's own contact details.
type Parent struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Child is one patient the caller is scheduling for.
type Child struct {
	Name           string    `json:"name"`
	DOB            time.Time `json:"dob"`
	NewPatient     bool      `json:"new_patient"`
	PriorTreatment bool      `json:"prior_treatment"`
	SpecialNeeds   string    `json:"special_needs,omitempty"`
}

// Age returns the child's age in whole years as of now.
func (c Child) Age(now time.Time) int {
	years := now.Year() - c.DOB.Year()
	if now.YearDay() < c.DOB.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Insurance holds the caller's coverage details.
type Insurance struct {
	Provider string `json:"provider"`
	MemberID string `json:"member_id"`
}

// SchedulingPrefs captures when and where the caller wants the appointment.
type SchedulingPrefs struct {
	TimeOfDay  string   `json:"time_of_day,omitempty"` // "morning" or "afternoon"
	DaysOfWeek []string `json:"days_of_week,omitempty"`
	Location   string   `json:"location,omitempty"`
}

// Persona is the simulated caller: a read-only data inventory plus behavior
// traits. One persona is owned by exactly one conversation.
type Persona struct {
	ID              string          `json:"id"`
	Parent          Parent          `json:"parent"`
	Children        []Child         `json:"children"`
	Insurance       Insurance       `json:"insurance"`
	Prefs           SchedulingPrefs `json:"prefs"`
	Verbosity       Verbosity       `json:"verbosity"`
	OffersExtraInfo bool            `json:"offers_extra_info"`

	// CallReason is the caller's stated reason for calling.
	// OrthodonticCase is false for personas probing out-of-scope requests.
	CallReason      string `json:"call_reason"`
	OrthodonticCase bool   `json:"orthodontic_case"`
}

// ActiveChild returns the child at index, clamped to the roster. A persona
// always has at least one child when used by the responder.
func (p Persona) ActiveChild(index int) Child {
	if len(p.Children) == 0 {
		return Child{}
	}
	if index < 0 || index >= len(p.Children) {
		index = 0
	}
	return p.Children[index]
}

// Summary renders the compact persona description embedded in LLM prompts.
func (p Persona) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Caller %s (%s), reason: %s.", p.Parent.Name, p.Parent.Phone, p.CallReason)
	for _, c := range p.Children {
		fmt.Fprintf(&b, " Child %s, DOB %s, new patient: %t.", c.Name, c.DOB.Format("2006-01-02"), c.NewPatient)
	}
	if p.Insurance.Provider != "" {
		fmt.Fprintf(&b, " Insurance: %s.", p.Insurance.Provider)
	}
	return b.String()
}
