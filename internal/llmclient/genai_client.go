package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// GenAIClient talks to Gemini through the official SDK instead of the raw
// REST endpoint. Selected with provider "gemini_sdk".
type GenAIClient struct {
	client *genai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

// NewGenAIClient initializes the SDK-backed client.
func NewGenAIClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}

	return &GenAIClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.genai"),
	}, nil
}

// Name identifies this backend in execution results.
func (c *GenAIClient) Name() string {
	return string(config.ProviderGeminiSDK) + ":" + c.config.Model
}

// GenerateResponse sends the prompts through the SDK and returns the
// generated content. The SDK owns transport-level retries.
func (c *GenAIClient) GenerateResponse(ctx context.Context, req schemas.ExecutionRequest) (string, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.ForceJSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	c.logger.Debug("LLM generation complete (GenAI SDK)",
		zap.String("model", c.config.Model))
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
