package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// HTTPAgent drives an agent under test over a JSON POST endpoint. Each caller
// line is sent as one request carrying the session id so the remote agent can
// keep per-conversation state.
type HTTPAgent struct {
	endpoint   string
	sessionID  string
	httpClient *http.Client
	logger     *zap.Logger
}

type agentRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type agentResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// NewHTTPAgent builds an agent adapter for one conversation.
func NewHTTPAgent(endpoint, sessionID string, timeout time.Duration, logger *zap.Logger) (*HTTPAgent, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("agent endpoint is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAgent{
		endpoint:   endpoint,
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("http_agent"),
	}, nil
}

// Respond sends the caller's line and returns the agent's reply.
func (a *HTTPAgent) Respond(ctx context.Context, callerLine string) (string, error) {
	payload, err := json.Marshal(agentRequest{SessionID: a.sessionID, Message: callerLine})
	if err != nil {
		return "", fmt.Errorf("failed to marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed agentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse agent response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("agent error: %s", parsed.Error)
	}
	if parsed.Reply == "" {
		return "", fmt.Errorf("agent returned an empty reply")
	}

	a.logger.Debug("Agent replied",
		zap.String("session_id", a.sessionID),
		zap.Int("reply_len", len(parsed.Reply)))
	return parsed.Reply, nil
}
