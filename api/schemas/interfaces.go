package schemas

import (
	"context"
	"time"
)

// ModelTier selects the class of model a request should be routed to. Fast
// models handle classification fallback; powerful models handle larger
// extraction and judgment prompts.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// ExecutionRequest carries one prompt to an LLM backend.
type ExecutionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tier         ModelTier
	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
	ForceJSON    bool
}

// ExecutionResult is the typed outcome of an LLM call. Failures are carried
// in the result, never as a panic across the boundary.
type ExecutionResult struct {
	Success  bool
	Content  string
	Err      string
	Provider string
	Duration time.Duration
}

// Availability reports whether an LLM backend can currently serve requests.
type Availability struct {
	Available bool
	Provider  string
	Err       string
}

// LLMProvider abstracts the LLM backend used for classification fallback and
// entity extraction. Implementations must be safe to call repeatedly and from
// multiple conversations at once.
type LLMProvider interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
	CheckAvailability(ctx context.Context) Availability
}

// AgentUnderTest is the conversational system being exercised. The harness
// sends the caller's line and receives the agent's next utterance.
type AgentUnderTest interface {
	Respond(ctx context.Context, callerLine string) (string, error)
}

// ResultStore persists terminal verdicts. A nil store is valid and means
// persistence is skipped.
type ResultStore interface {
	PersistResult(ctx context.Context, result *GoalTestResult) error
}
