package harness

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/classifier"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
	"github.com/xkilldash9x/dialtest-cli/internal/convo"
	"github.com/xkilldash9x/dialtest-cli/internal/goals"
	"github.com/xkilldash9x/dialtest-cli/internal/progress"
	"github.com/xkilldash9x/dialtest-cli/internal/responder"
)

// TestCase is one declared conversation to drive against the agent under
// test.
type TestCase struct {
	ID          string
	Persona     schemas.Persona
	Goals       []schemas.Goal
	Constraints []schemas.Constraint

	// Seed drives the responder's phrase variety. Zero means derive one
	// from the test case ID so reruns stay reproducible.
	Seed int64
}

// AgentFactory builds a fresh agent connection per conversation, so
// concurrent conversations never share agent-side state.
type AgentFactory func(tc TestCase) (schemas.AgentUnderTest, error)

// Runner owns the turn loop. The trackers and the responder are constructed
// fresh for every conversation; the classifier, its result cache, the LLM
// provider, and the result store are shared across conversations, and all of
// them are safe for concurrent use. The shared cache means identical agent
// utterances heard by concurrent conversations pay for at most one LLM
// fallback.
type Runner struct {
	cfg        *config.Config
	provider   schemas.LLMProvider
	store      schemas.ResultStore
	classifier *classifier.Classifier
	evaluator  *goals.Evaluator
	logger     *zap.Logger
}

// NewRunner creates a runner. provider and store may be nil: a nil provider
// disables the classifier's LLM fallback, a nil store disables persistence.
func NewRunner(cfg *config.Config, provider schemas.LLMProvider, store schemas.ResultStore, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		classifier: classifier.New(cfg.Classifier, provider, logger),
		evaluator:  goals.NewEvaluator(logger),
		logger:     logger.Named("harness"),
	}
}

// RunConversation drives one conversation to a verdict: the strictly
// alternating classify, track, respond loop until a terminal state, the turn
// budget, or context cancellation, followed by final goal evaluation.
func (r *Runner) RunConversation(ctx context.Context, tc TestCase, agent schemas.AgentUnderTest) (*schemas.GoalTestResult, error) {
	sessionID := uuid.NewString()
	logger := r.logger.With(
		zap.String("session_id", sessionID),
		zap.String("test_case", tc.ID))

	contextTracker := convo.NewTracker(sessionID, r.cfg.Tracker, r.logger)
	progressTracker := progress.New(sessionID, tc.Goals, r.cfg.Tracker, r.logger)
	engine := responder.NewEngine(tc.Persona, rand.New(rand.NewSource(tc.seed())), r.logger)

	var transcript schemas.Transcript
	activeChild := 0
	start := time.Now()

	callerLine := openingLine(tc.Persona)
	transcript.Append(schemas.SpeakerCaller, callerLine)

	for turn := 1; turn <= r.cfg.Harness.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("Conversation stopped by context", zap.Int("turn", turn))
			break
		}

		agentLine, err := r.agentTurn(ctx, agent, callerLine)
		if err != nil {
			return nil, fmt.Errorf("agent under test failed on turn %d: %w", turn, err)
		}
		transcript.Append(schemas.SpeakerAgent, agentLine)

		res := r.classifier.Classify(ctx, agentLine, transcript, tc.Persona)
		contextTracker.RecordAgentTurn(turn, res)

		callerLine = engine.GenerateResponse(res, responder.TurnContext{
			AgentUtterance:  agentLine,
			Turn:            turn,
			ActiveChild:     activeChild,
			BookingComplete: progressTracker.BookingConfirmed(),
		})
		progressTracker.UpdateProgress(res, callerLine, turn)
		contextTracker.RecordUserTurn(turn, callerLine, providedFields(tc.Persona, activeChild, res))
		transcript.Append(schemas.SpeakerCaller, callerLine)

		// A non-terminal confirmation is a per-child booking; move on to
		// the next sibling if the roster has one.
		if res.ConfirmedThisTurn && res.TerminalState == schemas.TerminalNone && activeChild+1 < len(tc.Persona.Children) {
			activeChild++
			contextTracker.SetActiveChild(activeChild)
		}

		if res.TerminalState != schemas.TerminalNone {
			logger.Info("Conversation reached terminal state",
				zap.String("state", string(res.TerminalState)),
				zap.Int("turn", turn))
			break
		}
	}

	final := progressTracker.Snapshot()
	for _, anomaly := range contextTracker.Anomalies() {
		final.Issues = append(final.Issues, anomaly.Issue())
	}
	result := r.evaluator.EvaluateTest(sessionID, tc.Goals, tc.Constraints, final, transcript, time.Since(start))

	if r.store != nil {
		if err := r.store.PersistResult(ctx, result); err != nil {
			logger.Warn("Failed to persist result", zap.Error(err))
		}
	}
	return result, nil
}

// RunAll executes the test cases as independent concurrent conversations,
// bounded by harness.concurrency. Results come back in test-case order; a
// failed conversation cancels the rest.
func (r *Runner) RunAll(ctx context.Context, cases []TestCase, factory AgentFactory) ([]*schemas.GoalTestResult, error) {
	results := make([]*schemas.GoalTestResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Harness.Concurrency)

	for i, tc := range cases {
		g.Go(func() error {
			agent, err := factory(tc)
			if err != nil {
				return fmt.Errorf("test case %s: %w", tc.ID, err)
			}
			result, err := r.RunConversation(gctx, tc, agent)
			if err != nil {
				return fmt.Errorf("test case %s: %w", tc.ID, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// agentTurn bounds one exchange with the agent under test.
func (r *Runner) agentTurn(ctx context.Context, agent schemas.AgentUnderTest, callerLine string) (string, error) {
	timeout := r.cfg.Harness.TurnTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return agent.Respond(turnCtx, callerLine)
}

// providedFields maps the fields the agent just requested to the persona
// values the caller's reply carries. The context tracker gets canonical
// values rather than formatted sentences, so re-asking the same question
// never reads as a contradiction.
func providedFields(persona schemas.Persona, activeChild int, res schemas.ClassificationResult) map[schemas.DataField]string {
	child := persona.ActiveChild(activeChild)
	provided := make(map[schemas.DataField]string, len(res.DataFields))
	for _, field := range res.DataFields {
		var value string
		switch field {
		case schemas.FieldCallerName:
			value = persona.Parent.Name
		case schemas.FieldCallerPhone:
			value = persona.Parent.Phone
		case schemas.FieldCallerEmail:
			value = persona.Parent.Email
		case schemas.FieldChildName:
			value = child.Name
		case schemas.FieldChildDOB:
			if !child.DOB.IsZero() {
				value = child.DOB.Format("2006-01-02")
			}
		case schemas.FieldChildAge:
			if !child.DOB.IsZero() {
				value = strconv.Itoa(child.Age(time.Now()))
			}
		case schemas.FieldInsuranceProvider:
			value = persona.Insurance.Provider
		case schemas.FieldInsuranceID:
			value = persona.Insurance.MemberID
		case schemas.FieldPreferredTime:
			value = persona.Prefs.TimeOfDay
		case schemas.FieldPreferredDay:
			value = strings.Join(persona.Prefs.DaysOfWeek, ", ")
		case schemas.FieldLocation:
			value = persona.Prefs.Location
		case schemas.FieldReasonForVisit:
			value = persona.CallReason
		case schemas.FieldSpecialNeeds:
			value = child.SpecialNeeds
		}
		if value != "" {
			provided[field] = value
		}
	}
	return provided
}

func openingLine(persona schemas.Persona) string {
	if persona.CallReason != "" {
		return "Hi! " + persona.CallReason + "."
	}
	return "Hi, I'd like to schedule an appointment for my child."
}

func (tc TestCase) seed() int64 {
	if tc.Seed != 0 {
		return tc.Seed
	}
	var h int64
	for _, c := range tc.ID {
		h = h*31 + int64(c)
	}
	if h == 0 {
		h = 1
	}
	return h
}
