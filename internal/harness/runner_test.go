package harness

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
	"github.com/xkilldash9x/dialtest-cli/internal/convo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedAgent replays a fixed sequence of agent utterances, then repeats
// the last one.
type scriptedAgent struct {
	mu    sync.Mutex
	lines []string
	next  int
	heard []string
	err   error
}

func (a *scriptedAgent) Respond(ctx context.Context, callerLine string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.heard = append(a.heard, callerLine)
	if a.next >= len(a.lines) {
		return a.lines[len(a.lines)-1], nil
	}
	line := a.lines[a.next]
	a.next++
	return line, nil
}

// countingProvider serves a canned classification and counts executions.
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Execute(ctx context.Context, req schemas.ExecutionRequest) schemas.ExecutionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return schemas.ExecutionResult{
		Success:  true,
		Provider: "scripted",
		Content:  `{"category":"clarify_request","confidence":0.9,"data_fields":[],"terminal_state":"none","reasoning":"small talk"}`,
	}
}

func (p *countingProvider) CheckAvailability(ctx context.Context) schemas.Availability {
	return schemas.Availability{Available: true, Provider: "scripted"}
}

type recordingStore struct {
	mu      sync.Mutex
	results []*schemas.GoalTestResult
}

func (s *recordingStore) PersistResult(ctx context.Context, result *schemas.GoalTestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func happyPathAgent() *scriptedAgent {
	return &scriptedAgent{lines: []string{
		"Hi! May I have your name, please?",
		"Thanks! What's the best phone number to reach you?",
		"And what is your child's name?",
		"Perfect. Your appointment has been scheduled for Monday at 9am.",
	}}
}

func happyPathCase() TestCase {
	return TestCase{
		ID: "happy-path",
		Persona: schemas.Persona{
			ID:     "p1",
			Parent: schemas.Parent{Name: "Dana Reyes", Phone: "555-123-4567"},
			Children: []schemas.Child{{
				Name: "Mia",
			}},
			Verbosity:       schemas.VerbosityTerse,
			CallReason:      "I'd like to get my daughter evaluated for braces",
			OrthodonticCase: true,
		},
		Goals: []schemas.Goal{
			{
				ID:   "collect-contact",
				Type: schemas.GoalDataCollection,
				RequiredFields: []schemas.DataField{
					schemas.FieldCallerName, schemas.FieldCallerPhone, schemas.FieldChildName,
				},
				Required: true,
			},
			{ID: "booking", Type: schemas.GoalBookingConfirmed, Required: true},
		},
	}
}

func newTestRunner(store schemas.ResultStore) *Runner {
	cfg := config.NewDefaultConfig()
	return NewRunner(cfg, nil, store, zap.NewNop())
}

func TestRunConversationHappyPath(t *testing.T) {
	runner := newTestRunner(nil)
	agent := happyPathAgent()

	result, err := runner.RunConversation(context.Background(), happyPathCase(), agent)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Passed, result.Summary)
	assert.True(t, result.FinalState.BookingConfirmed)
	assert.Empty(t, result.FinalState.PendingFields)

	// Opening line plus four agent/caller exchanges.
	assert.Len(t, result.Transcript, 9)
	assert.Equal(t, schemas.SpeakerCaller, result.Transcript[0].Speaker)

	// The agent heard real persona data, not placeholders.
	require.GreaterOrEqual(t, len(agent.heard), 3)
	assert.Contains(t, agent.heard[1], "Dana Reyes")
	assert.Contains(t, agent.heard[2], "555-123-4567")
}

func TestRunConversationStopsAtTerminalState(t *testing.T) {
	runner := newTestRunner(nil)
	agent := happyPathAgent()

	result, err := runner.RunConversation(context.Background(), happyPathCase(), agent)

	require.NoError(t, err)
	assert.Equal(t, 4, result.FinalState.Turn, "loop must stop on the booking terminal")
}

func TestRunConversationRespectsMaxTurns(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Harness.MaxTurns = 3
	runner := NewRunner(cfg, nil, nil, zap.NewNop())

	agent := &scriptedAgent{lines: []string{"What's the best phone number to reach you?"}}
	tc := happyPathCase()

	result, err := runner.RunConversation(context.Background(), tc, agent)

	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 3, result.FinalState.Turn)
}

func TestRunConversationAgentErrorSurfaces(t *testing.T) {
	runner := newTestRunner(nil)
	agent := &scriptedAgent{err: errors.New("dial tone lost")}

	result, err := runner.RunConversation(context.Background(), happyPathCase(), agent)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "dial tone lost")
}

func TestRunConversationPersistsResult(t *testing.T) {
	store := &recordingStore{}
	runner := newTestRunner(store)

	_, err := runner.RunConversation(context.Background(), happyPathCase(), happyPathAgent())

	require.NoError(t, err)
	require.Len(t, store.results, 1)
	assert.NotEmpty(t, store.results[0].SessionID)
}

func TestRunnerSharesClassifierCacheAcrossConversations(t *testing.T) {
	provider := &countingProvider{}
	runner := NewRunner(config.NewDefaultConfig(), provider, nil, zap.NewNop())

	// The first line matches no rule, so only the first conversation should
	// reach the LLM fallback; the second must be served from the cache.
	lines := []string{
		"Our office mascot is a friendly walrus.",
		"Your appointment has been scheduled for Monday at 9am.",
	}

	for i := 0; i < 2; i++ {
		_, err := runner.RunConversation(context.Background(), happyPathCase(), &scriptedAgent{lines: lines})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, provider.calls)
}

func TestRunConversationSurfacesTrackerAnomalies(t *testing.T) {
	runner := newTestRunner(nil)
	agent := &scriptedAgent{lines: []string{
		"Your appointment has been scheduled for Monday at 9am.",
	}}

	result, err := runner.RunConversation(context.Background(), happyPathCase(), agent)

	require.NoError(t, err)
	require.NotNil(t, result)

	found := issuesOfType(result, convo.AnomalyPrematureBooking)
	require.Len(t, found, 1)
	assert.Equal(t, schemas.SeverityCritical, found[0].Severity)
}

func TestRunConversationRecordsCallerFields(t *testing.T) {
	runner := newTestRunner(nil)
	agent := &scriptedAgent{lines: []string{
		"May I have your name, please?",
		"Sorry, could I get your name one more time?",
		"Your appointment has been scheduled for Monday at 9am.",
	}}

	result, err := runner.RunConversation(context.Background(), happyPathCase(), agent)

	require.NoError(t, err)
	found := issuesOfType(result, convo.AnomalyFieldAlreadyProvided)
	require.Len(t, found, 1)
}

func issuesOfType(result *schemas.GoalTestResult, kind convo.AnomalyType) []schemas.Issue {
	var found []schemas.Issue
	for _, issue := range result.FinalState.Issues {
		if issue.Type == schemas.IssueType(kind) {
			found = append(found, issue)
		}
	}
	return found
}

func TestRunAllRunsEveryCase(t *testing.T) {
	runner := newTestRunner(nil)

	cases := []TestCase{happyPathCase(), happyPathCase(), happyPathCase()}
	cases[1].ID = "happy-path-2"
	cases[2].ID = "happy-path-3"

	results, err := runner.RunAll(context.Background(), cases, func(tc TestCase) (schemas.AgentUnderTest, error) {
		return happyPathAgent(), nil
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		require.NotNil(t, result, "case %d", i)
		assert.True(t, result.Passed)
	}
}

func TestRunAllPropagatesFactoryError(t *testing.T) {
	runner := newTestRunner(nil)

	_, err := runner.RunAll(context.Background(), []TestCase{happyPathCase()}, func(tc TestCase) (schemas.AgentUnderTest, error) {
		return nil, errors.New("agent unreachable")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent unreachable")
}
