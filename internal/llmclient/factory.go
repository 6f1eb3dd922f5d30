package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// Backend is one concrete model endpoint. The router owns tier selection and
// timeout bounding; backends only generate.
type Backend interface {
	GenerateResponse(ctx context.Context, req schemas.ExecutionRequest) (string, error)
	Name() string
}

// NewBackend creates a model backend from its configuration.
func NewBackend(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderGeminiSDK:
		return NewGenAIClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderGeminiSDK)
	}
}
