package llmclient

import (
	"context"

	"golang.org/x/time/rate"
)

// limiter throttles outbound LLM calls across all concurrent conversations.
// A nil inner limiter means throttling is disabled.
type limiter struct {
	inner *rate.Limiter
}

func newLimiter(requestsPerSecond float64) *limiter {
	if requestsPerSecond <= 0 {
		return &limiter{}
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &limiter{inner: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (l *limiter) wait(ctx context.Context) error {
	if l == nil || l.inner == nil {
		return nil
	}
	return l.inner.Wait(ctx)
}
