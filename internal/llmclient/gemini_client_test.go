package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

// -- Test Setup Helpers --

// setupGeminiClient rigs up a GeminiClient pointed at a mock HTTP server.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server, config.LLMModelConfig, *observer.ObservedLogs) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)

	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(loggerCore)

	cfg := getValidLLMConfig()
	cfg.Endpoint = server.URL

	client, err := NewGeminiClient(cfg, logger)
	require.NoError(t, err, "NewGeminiClient initialization failed")

	// Ensure tests fail fast on unexpected hangs
	client.httpClient.Timeout = 5 * time.Second

	t.Cleanup(server.Close)
	return client, server, cfg, observedLogs
}

// createTestRequest provides a standard execution request structure.
func createTestRequest() schemas.ExecutionRequest {
	return schemas.ExecutionRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Temperature:  0.7,
	}
}

func successBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`, text)
}

// -- Test Cases: Initialization --

func TestNewGeminiClient_Success(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.Endpoint = ""

	client, err := NewGeminiClient(cfg, logger)

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, cfg.APIKey, client.apiKey)
	assert.Equal(t, cfg.APITimeout, client.httpClient.Timeout)
	expectedEndpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	assert.Equal(t, expectedEndpoint, client.endpoint)
}

func TestNewGeminiClient_Failure_MissingAPIKey(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.APIKey = ""

	client, err := NewGeminiClient(cfg, logger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "API Key is required")
}

// -- Test Cases: Request Payload Generation --

func TestBuildRequestPayload_Standard(t *testing.T) {
	client, _, _, _ := setupGeminiClient(t, nil)
	client.config.MaxTokens = 2048

	payload := client.buildRequestPayload(createTestRequest())

	require.Len(t, payload.Contents, 1)
	assert.Equal(t, "user", payload.Contents[0].Role)
	assert.Equal(t, "User query.", payload.Contents[0].Parts[0].Text)
	require.NotNil(t, payload.SystemInstruction)
	assert.Equal(t, "System prompt instructions.", payload.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, 0.7, payload.GenerationConfig.Temperature, 0.0001)
	assert.Equal(t, 2048, payload.GenerationConfig.MaxOutputTokens)
	assert.Empty(t, payload.GenerationConfig.ResponseMimeType)
}

func TestBuildRequestPayload_ForceJSON(t *testing.T) {
	client, _, _, _ := setupGeminiClient(t, nil)

	req := createTestRequest()
	req.ForceJSON = true
	payload := client.buildRequestPayload(req)

	assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMimeType)
}

func TestBuildRequestPayload_FallsBackToModelDefaults(t *testing.T) {
	client, _, _, _ := setupGeminiClient(t, nil)

	payload := client.buildRequestPayload(schemas.ExecutionRequest{UserPrompt: "hi"})

	assert.InDelta(t, float64(client.config.Temperature), payload.GenerationConfig.Temperature, 0.0001)
	assert.Equal(t, client.config.MaxTokens, payload.GenerationConfig.MaxOutputTokens)
	assert.Nil(t, payload.SystemInstruction)
}

// -- Test Cases: Generation --

func TestGenerateResponse_Success(t *testing.T) {
	var capturedKey atomic.Value
	handler := func(w http.ResponseWriter, r *http.Request) {
		capturedKey.Store(r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		var payload geminiRequestPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody("generated text"))
	}
	client, _, cfg, _ := setupGeminiClient(t, handler)

	content, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "generated text", content)
	assert.Equal(t, cfg.APIKey, capturedKey.Load())
}

func TestGenerateResponse_RetryOnTransientErrors(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, successBody("after retry"))
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	content, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "after retry", content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateResponse_NoRetryOnPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	_, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load(), "permanent errors must not be retried")
}

func TestGenerateResponse_Failure_SafetyBlock(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`)
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	_, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateResponse_Failure_NoCandidates(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates":[]}`)
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	_, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateResponse_Failure_InvalidJSONResponse(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json at all`)
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	_, err := client.GenerateResponse(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response payload")
}

func TestGenerateResponse_ContextCancellation(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, successBody("too late"))
	}
	client, _, _, _ := setupGeminiClient(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.GenerateResponse(ctx, createTestRequest())
	assert.Error(t, err)
}
