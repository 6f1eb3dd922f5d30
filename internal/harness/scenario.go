package harness

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/persona"
)

// scenarioFile is the on-disk shape of a scenario suite. Personas may be
// spelled out fully or generated from a seed when the persona block is empty.
type scenarioFile struct {
	Scenarios []scenarioSpec `mapstructure:"scenarios"`
}

type scenarioSpec struct {
	ID          string           `mapstructure:"id"`
	Seed        int64            `mapstructure:"seed"`
	Persona     *personaSpec     `mapstructure:"persona"`
	Goals       []goalSpec       `mapstructure:"goals"`
	Constraints []constraintSpec `mapstructure:"constraints"`
}

type personaSpec struct {
	ParentName      string      `mapstructure:"parent_name"`
	Phone           string      `mapstructure:"phone"`
	Email           string      `mapstructure:"email"`
	Children        []childSpec `mapstructure:"children"`
	Insurance       string      `mapstructure:"insurance"`
	MemberID        string      `mapstructure:"member_id"`
	TimeOfDay       string      `mapstructure:"time_of_day"`
	DaysOfWeek      []string    `mapstructure:"days_of_week"`
	Location        string      `mapstructure:"location"`
	Verbosity       string      `mapstructure:"verbosity"`
	CallReason      string      `mapstructure:"call_reason"`
	OffTopic        bool        `mapstructure:"off_topic"`
	OffersExtraInfo bool        `mapstructure:"offers_extra_info"`
}

type childSpec struct {
	Name           string `mapstructure:"name"`
	DOB            string `mapstructure:"dob"`
	NewPatient     bool   `mapstructure:"new_patient"`
	PriorTreatment bool   `mapstructure:"prior_treatment"`
	SpecialNeeds   string `mapstructure:"special_needs"`
}

type goalSpec struct {
	ID             string   `mapstructure:"id"`
	Type           string   `mapstructure:"type"`
	Description    string   `mapstructure:"description"`
	RequiredFields []string `mapstructure:"required_fields"`
	Required       bool     `mapstructure:"required"`
}

type constraintSpec struct {
	ID          string        `mapstructure:"id"`
	Type        string        `mapstructure:"type"`
	Description string        `mapstructure:"description"`
	Severity    string        `mapstructure:"severity"`
	MaxTurns    int           `mapstructure:"max_turns"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// LoadScenarios reads a YAML scenario suite and resolves it into test cases.
// Scenarios without an inline persona get a generated one, seeded per case so
// suites replay deterministically.
func LoadScenarios(path string) ([]TestCase, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}

	var file scenarioFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}

	cases := make([]TestCase, 0, len(file.Scenarios))
	for i, spec := range file.Scenarios {
		tc, err := spec.resolve()
		if err != nil {
			return nil, fmt.Errorf("scenario %d (%s): %w", i, spec.ID, err)
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func (s scenarioSpec) resolve() (TestCase, error) {
	if s.ID == "" {
		return TestCase{}, fmt.Errorf("missing scenario id")
	}

	tc := TestCase{ID: s.ID, Seed: s.Seed}

	if s.Persona != nil {
		p, err := s.Persona.resolve(s.ID)
		if err != nil {
			return TestCase{}, err
		}
		tc.Persona = p
	} else {
		tc.Persona = persona.NewGenerator(tc.seed()).Generate(1)
	}

	for _, g := range s.Goals {
		goal, err := g.resolve()
		if err != nil {
			return TestCase{}, err
		}
		tc.Goals = append(tc.Goals, goal)
	}
	if len(tc.Goals) == 0 {
		tc.Goals = DefaultGoals()
	}

	for _, c := range s.Constraints {
		constraint, err := c.resolve()
		if err != nil {
			return TestCase{}, err
		}
		tc.Constraints = append(tc.Constraints, constraint)
	}
	return tc, nil
}

func (p personaSpec) resolve(scenarioID string) (schemas.Persona, error) {
	out := schemas.Persona{
		ID:     scenarioID,
		Parent: schemas.Parent{Name: p.ParentName, Phone: p.Phone, Email: p.Email},
		Insurance: schemas.Insurance{
			Provider: p.Insurance,
			MemberID: p.MemberID,
		},
		Prefs: schemas.SchedulingPrefs{
			TimeOfDay:  p.TimeOfDay,
			DaysOfWeek: p.DaysOfWeek,
			Location:   p.Location,
		},
		Verbosity:       schemas.Verbosity(p.Verbosity),
		OffersExtraInfo: p.OffersExtraInfo,
		CallReason:      p.CallReason,
		OrthodonticCase: !p.OffTopic,
	}
	if out.Verbosity == "" {
		out.Verbosity = schemas.VerbosityNormal
	}
	if out.CallReason == "" {
		out.CallReason = "I'd like to schedule an orthodontic consultation for my child"
	}

	for _, c := range p.Children {
		dob, err := time.Parse("2006-01-02", c.DOB)
		if err != nil {
			return schemas.Persona{}, fmt.Errorf("child %q has invalid dob %q: %w", c.Name, c.DOB, err)
		}
		out.Children = append(out.Children, schemas.Child{
			Name:           c.Name,
			DOB:            dob,
			NewPatient:     c.NewPatient,
			PriorTreatment: c.PriorTreatment,
			SpecialNeeds:   c.SpecialNeeds,
		})
	}
	if len(out.Children) == 0 {
		return schemas.Persona{}, fmt.Errorf("persona needs at least one child")
	}
	return out, nil
}

func (g goalSpec) resolve() (schemas.Goal, error) {
	if g.ID == "" {
		return schemas.Goal{}, fmt.Errorf("missing goal id")
	}
	goalType := schemas.GoalType(g.Type)
	switch goalType {
	case schemas.GoalDataCollection, schemas.GoalBookingConfirmed,
		schemas.GoalTransferInitiated, schemas.GoalConversationEnded, schemas.GoalCustom:
	default:
		return schemas.Goal{}, fmt.Errorf("goal %s has unknown type %q", g.ID, g.Type)
	}

	goal := schemas.Goal{
		ID:          g.ID,
		Type:        goalType,
		Description: g.Description,
		Required:    g.Required,
	}
	for _, f := range g.RequiredFields {
		goal.RequiredFields = append(goal.RequiredFields, schemas.DataField(f))
	}
	if goalType == schemas.GoalDataCollection && len(goal.RequiredFields) == 0 {
		return schemas.Goal{}, fmt.Errorf("goal %s collects data but names no fields", g.ID)
	}
	return goal, nil
}

func (c constraintSpec) resolve() (schemas.Constraint, error) {
	if c.ID == "" {
		return schemas.Constraint{}, fmt.Errorf("missing constraint id")
	}
	constraintType := schemas.ConstraintType(c.Type)
	switch constraintType {
	case schemas.ConstraintMaxTurns:
		if c.MaxTurns <= 0 {
			return schemas.Constraint{}, fmt.Errorf("constraint %s needs a positive max_turns", c.ID)
		}
	case schemas.ConstraintMaxTime:
		if c.MaxDuration <= 0 {
			return schemas.Constraint{}, fmt.Errorf("constraint %s needs a positive max_duration", c.ID)
		}
	case schemas.ConstraintMustHappen, schemas.ConstraintMustNotHappen:
		// Predicates cannot come from a file. These constraint types are for
		// programmatic suites and are rejected here.
		return schemas.Constraint{}, fmt.Errorf("constraint %s: type %q requires a predicate and cannot be loaded from a file", c.ID, c.Type)
	default:
		return schemas.Constraint{}, fmt.Errorf("constraint %s has unknown type %q", c.ID, c.Type)
	}

	severity := schemas.Severity(c.Severity)
	if severity == "" {
		severity = schemas.SeverityMedium
	}

	return schemas.Constraint{
		ID:          c.ID,
		Type:        constraintType,
		Description: c.Description,
		Severity:    severity,
		MaxTurns:    c.MaxTurns,
		MaxDuration: c.MaxDuration,
	}, nil
}

// DefaultGoals is the baseline suite for generated personas: collect the
// contact trio and land a booking within a reasonable call length.
func DefaultGoals() []schemas.Goal {
	return []schemas.Goal{
		{
			ID:   "collect-contact-info",
			Type: schemas.GoalDataCollection,
			RequiredFields: []schemas.DataField{
				schemas.FieldCallerName,
				schemas.FieldCallerPhone,
				schemas.FieldChildName,
			},
			Required: true,
		},
		{
			ID:       "complete-booking",
			Type:     schemas.GoalBookingConfirmed,
			Required: true,
		},
	}
}

// DefaultConstraints bounds generated cases so a looping agent fails fast.
func DefaultConstraints(maxTurns int) []schemas.Constraint {
	return []schemas.Constraint{
		{
			ID:       "turn-budget",
			Type:     schemas.ConstraintMaxTurns,
			Severity: schemas.SeverityMedium,
			MaxTurns: maxTurns,
		},
	}
}

// GenerateCases produces count synthetic cases with the default goal suite.
func GenerateCases(seed int64, count, maxTurns int) []TestCase {
	if count <= 0 {
		count = 1
	}
	gen := persona.NewGenerator(seed)

	cases := make([]TestCase, count)
	for i := range cases {
		cases[i] = TestCase{
			ID:          fmt.Sprintf("generated-%02d", i+1),
			Persona:     gen.Generate(1),
			Goals:       DefaultGoals(),
			Constraints: DefaultConstraints(maxTurns),
			Seed:        seed + int64(i),
		}
	}
	return cases
}
