package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// Classifier turns an agent utterance into a structured classification using
// two tiers: the deterministic rule table, and an LLM fallback consulted only
// when tier-1 confidence falls below the configured threshold.
//
// Classify is total: it always returns a usable result, even under complete
// LLM failure. Instances are safe for concurrent use; the result cache is
// the only shared mutable state.
type Classifier struct {
	rules    []rule
	cache    *resultCache
	llm      *llmTier
	provider schemas.LLMProvider

	threshold float64
	logger    *zap.Logger
}

// New builds a classifier from the default rule table. provider may be nil,
// in which case tier-1 results are always final.
func New(cfg config.ClassifierConfig, provider schemas.LLMProvider, logger *zap.Logger) *Classifier {
	c := &Classifier{
		rules:     defaultRules(),
		cache:     newResultCache(cfg.CacheSize, cfg.CacheTTL),
		provider:  provider,
		threshold: cfg.LLMThreshold,
		logger:    logger.Named("classifier"),
	}
	if provider != nil {
		c.llm = newLLMTier(provider, cfg.HistoryWindow, c.logger)
	}
	return c
}

// Classify derives the structured intent of one agent utterance.
func (c *Classifier) Classify(ctx context.Context, utterance string, history schemas.Transcript, persona schemas.Persona) schemas.ClassificationResult {
	key := cacheKey(utterance)
	if res, ok := c.cache.get(key); ok {
		return res
	}

	res := c.matchRules(utterance)
	res = c.resolveFollowUp(utterance, res)

	if res.Confidence < c.threshold && c.llm != nil {
		if avail := c.provider.CheckAvailability(ctx); avail.Available {
			llmRes, err := c.llm.classify(ctx, utterance, history, persona)
			if err != nil {
				// Loss of the LLM must never abort classification; the
				// tier-1 result stands even below threshold.
				c.logger.Warn("LLM fallback failed, keeping tier-1 result",
					zap.Float64("tier1_confidence", res.Confidence),
					zap.Error(err))
			} else {
				res = llmRes
			}
		}
	}

	c.cache.put(key, res)
	return res
}

// matchRules runs the tier-1 scan: rules in priority order, patterns in
// declaration order, first matching pattern wins.
func (c *Classifier) matchRules(utterance string) schemas.ClassificationResult {
	lowered := strings.ToLower(utterance)

	for _, r := range c.rules {
		for _, p := range r.patterns {
			if !p.matches(lowered) {
				continue
			}
			res := schemas.ClassificationResult{
				Category:            r.category,
				Confidence:          r.confidence,
				DataFields:          append([]schemas.DataField(nil), r.fields...),
				ConfirmationSubject: r.subject,
				ExpectedAnswer:      r.expected,
				TerminalState:       r.terminal,
				BookingMentioned:    r.mentions.booking,
				TransferMentioned:   r.mentions.transfer,
				ConfirmedThisTurn:   r.confirmed,
				Reasoning:           fmt.Sprintf("rule %s matched %q", r.name, p.String()),
			}
			if res.TerminalState == "" {
				res.TerminalState = schemas.TerminalNone
			}
			if r.extract != nil {
				r.extract(utterance, &res)
			}
			return res
		}
	}

	// No match: a low-confidence placeholder still lets the caller simulator
	// produce some reply rather than stalling.
	return schemas.ClassificationResult{
		Category:      schemas.CategoryProvideData,
		Confidence:    0.3,
		DataFields:    []schemas.DataField{schemas.FieldUnknown},
		TerminalState: schemas.TerminalNone,
		Reasoning:     "no rule matched",
	}
}

// resolveFollowUp downgrades a booking-confirmed terminal classification when
// the same utterance also asks a follow-up question. The booking fact is kept
// on ConfirmedThisTurn so progress tracking still records it, but the caller
// must get a chance to answer the question.
func (c *Classifier) resolveFollowUp(utterance string, res schemas.ClassificationResult) schemas.ClassificationResult {
	if res.TerminalState != schemas.TerminalBookingConfirmed {
		return res
	}

	lowered := strings.ToLower(utterance)
	for _, fu := range followUpPatterns {
		if fu.pattern.matches(lowered) {
			res.Category = schemas.CategoryConfirmOrDeny
			res.ConfirmationSubject = fu.subject
			res.ExpectedAnswer = schemas.AnswerEither
			res.TerminalState = schemas.TerminalNone
			res.Reasoning += "; follow-up question downgraded terminal state"
			return res
		}
	}
	return res
}
