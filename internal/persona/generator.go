package persona

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// Generator produces synthetic caller personas. Seeded generators are
// deterministic, so a failing test run can be reproduced exactly.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator over the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

var (
	parentFirst = []string{"Dana", "Miguel", "Priya", "Jordan", "Aisha", "Tom", "Lena", "Sam", "Grace", "Victor"}
	childFirst  = []string{"Mia", "Leo", "Ava", "Noah", "Ivy", "Eli", "Zoe", "Max", "Ruby", "Owen"}
	lastNames   = []string{"Reyes", "Chen", "Okafor", "Novak", "Patel", "Kim", "Alvarez", "Schmidt", "Haddad", "Brooks"}
	providers   = []string{"Delta Dental", "Cigna", "MetLife", "Aetna", "Guardian"}
	locations   = []string{"downtown", "northside", "riverside"}
	dayparts    = []string{"morning", "afternoon"}
	weekdays    = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	needs       = []string{"", "", "", "She gets anxious around loud equipment", "He needs extra time to settle in"}
	reasons     = []string{
		"I'd like to get my child evaluated for braces",
		"Our dentist referred us for an orthodontic consult",
		"My child's retainer needs adjusting",
	}
	verbosities = []schemas.Verbosity{schemas.VerbosityTerse, schemas.VerbosityNormal, schemas.VerbosityVerbose}
)

// Generate builds one persona with the requested number of children.
// childCount is clamped to at least one.
func (g *Generator) Generate(childCount int) schemas.Persona {
	if childCount < 1 {
		childCount = 1
	}
	family := g.pick(lastNames)

	children := make([]schemas.Child, 0, childCount)
	for range childCount {
		children = append(children, g.child(family))
	}

	return schemas.Persona{
		// Drawing the UUID from the seeded source keeps the whole persona,
		// ID included, reproducible.
		ID:     uuid.Must(uuid.NewRandomFromReader(g.rng)).String(),
		Parent: g.parent(family),
		Children: children,
		Insurance: schemas.Insurance{
			Provider: g.pick(providers),
			MemberID: fmt.Sprintf("%s-%05d", g.pick(providers)[:2], g.rng.Intn(100000)),
		},
		Prefs: schemas.SchedulingPrefs{
			TimeOfDay:  g.pick(dayparts),
			DaysOfWeek: g.pickDays(),
			Location:   g.pick(locations),
		},
		Verbosity:       verbosities[g.rng.Intn(len(verbosities))],
		OffersExtraInfo: g.rng.Intn(2) == 0,
		CallReason:      g.pick(reasons),
		OrthodonticCase: true,
	}
}

// GenerateOffTopic builds a persona whose call reason is outside orthodontics,
// used to probe call-scope handling.
func (g *Generator) GenerateOffTopic() schemas.Persona {
	p := g.Generate(1)
	p.OrthodonticCase = false
	p.CallReason = "I was hoping to book a regular cleaning for my child"
	return p
}

func (g *Generator) parent(family string) schemas.Parent {
	first := g.pick(parentFirst)
	return schemas.Parent{
		Name:  first + " " + family,
		Phone: fmt.Sprintf("555-%03d-%04d", g.rng.Intn(1000), g.rng.Intn(10000)),
		Email: fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(family)),
	}
}

func (g *Generator) child(family string) schemas.Child {
	// Orthodontic patients skew 7-15 years old.
	age := 7 + g.rng.Intn(9)
	dob := g.now().AddDate(-age, 0, -g.rng.Intn(360))
	return schemas.Child{
		Name:           g.pick(childFirst) + " " + family,
		DOB:            dob.Truncate(24 * time.Hour),
		NewPatient:     g.rng.Intn(3) != 0,
		PriorTreatment: g.rng.Intn(4) == 0,
		SpecialNeeds:   g.pick(needs),
	}
}

func (g *Generator) pickDays() []string {
	count := 1 + g.rng.Intn(2)
	picked := make([]string, 0, count)
	for _, i := range g.rng.Perm(len(weekdays))[:count] {
		picked = append(picked, weekdays[i])
	}
	return picked
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}
