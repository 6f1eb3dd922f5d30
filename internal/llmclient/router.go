package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// Router implements schemas.LLMProvider over tiered backends. Execute bounds
// every call with a timeout and returns a typed result; no error ever
// crosses the boundary as a panic.
type Router struct {
	logger   *zap.Logger
	backends map[schemas.ModelTier]Backend
	timeouts map[schemas.ModelTier]time.Duration
	limiter  *limiter
}

// NewRouter builds backends for the fast and powerful tiers from the LLM
// configuration.
func NewRouter(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	fastCfg, ok := cfg.Models[cfg.FastModel]
	if !ok {
		return nil, fmt.Errorf("llm.models has no entry %q for the fast tier", cfg.FastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.PowerfulModel]
	if !ok {
		return nil, fmt.Errorf("llm.models has no entry %q for the powerful tier", cfg.PowerfulModel)
	}

	fast, err := NewBackend(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("fast tier: %w", err)
	}
	powerful, err := NewBackend(ctx, powerfulCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("powerful tier: %w", err)
	}

	return NewRouterWithBackends(fast, powerful, fastCfg.APITimeout, powerfulCfg.APITimeout, cfg.RequestsPerSecond, logger)
}

// NewRouterWithBackends wires pre-built backends, used directly by tests.
func NewRouterWithBackends(fast, powerful Backend, fastTimeout, powerfulTimeout time.Duration, rps float64, logger *zap.Logger) (*Router, error) {
	if fast == nil || powerful == nil {
		return nil, fmt.Errorf("both fast and powerful tier backends must be provided")
	}
	return &Router{
		logger: logger.Named("llm_router"),
		backends: map[schemas.ModelTier]Backend{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
		timeouts: map[schemas.ModelTier]time.Duration{
			schemas.TierFast:     fastTimeout,
			schemas.TierPowerful: powerfulTimeout,
		},
		limiter: newLimiter(rps),
	}, nil
}

// Execute routes the request to its tier's backend. Failures, including
// timeout and rate-limiter cancellation, come back inside the result.
func (r *Router) Execute(ctx context.Context, req schemas.ExecutionRequest) schemas.ExecutionResult {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	backend, ok := r.backends[tier]
	if !ok {
		return schemas.ExecutionResult{Err: fmt.Sprintf("no LLM backend configured for tier: %s", tier)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeouts[tier]
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := r.limiter.wait(ctx); err != nil {
		return schemas.ExecutionResult{
			Err:      fmt.Sprintf("rate limiter: %v", err),
			Provider: backend.Name(),
			Duration: time.Since(start),
		}
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	content, err := backend.GenerateResponse(ctx, req)
	result := schemas.ExecutionResult{
		Provider: backend.Name(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	result.Content = content
	return result
}

// CheckAvailability reports whether the fast-tier backend is wired. It does
// not probe the network; a dead endpoint is discovered by Execute and
// degraded by the caller.
func (r *Router) CheckAvailability(ctx context.Context) schemas.Availability {
	backend, ok := r.backends[schemas.TierFast]
	if !ok || backend == nil {
		return schemas.Availability{Err: "no fast-tier backend configured"}
	}
	if err := ctx.Err(); err != nil {
		return schemas.Availability{Provider: backend.Name(), Err: err.Error()}
	}
	return schemas.Availability{Available: true, Provider: backend.Name()}
}
