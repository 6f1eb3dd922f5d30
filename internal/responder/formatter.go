package responder

import (
	"math/rand"
	"strings"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// formatter wraps the semantic payload in persona-voice padding. It never
// alters meaning: decision logic upstream must not depend on which variant
// was chosen.
type formatter struct {
	verbosity schemas.Verbosity
	rng       *rand.Rand
}

func newFormatter(verbosity schemas.Verbosity, rng *rand.Rand) *formatter {
	return &formatter{verbosity: verbosity, rng: rng}
}

var prefixPools = map[schemas.Category][]string{
	schemas.CategoryProvideData: {
		"Sure.", "Of course.", "Let me see.",
	},
	schemas.CategoryConfirmOrDeny: {
		"Mm-hmm.", "Right.",
	},
	schemas.CategorySelectFromOptions: {
		"Let's see.", "Hmm.",
	},
	schemas.CategoryExpressPreference: {
		"Well,", "If possible,",
	},
}

var verboseSuffixPool = []string{
	"Thanks for asking.", "I appreciate it.", "Hope that helps.",
}

// format applies the verbosity trait: terse replies pass through untouched,
// normal gets an occasional prefix, verbose gets a prefix and a suffix.
func (f *formatter) format(category schemas.Category, reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" || f.verbosity == schemas.VerbosityTerse {
		return reply
	}

	pool := prefixPools[category]
	switch f.verbosity {
	case schemas.VerbosityNormal:
		if len(pool) > 0 && f.rng != nil && f.rng.Intn(2) == 0 {
			return f.pick(pool) + " " + reply
		}
		return reply
	case schemas.VerbosityVerbose:
		out := reply
		if len(pool) > 0 && f.rng != nil {
			out = f.pick(pool) + " " + out
		}
		if f.rng != nil {
			out = out + " " + f.pick(verboseSuffixPool)
		}
		return out
	}
	return reply
}

func (f *formatter) pick(pool []string) string {
	return pool[f.rng.Intn(len(pool))]
}
