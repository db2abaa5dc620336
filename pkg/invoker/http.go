package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxErrorBodyBytes = 2048

// HTTPInvoker calls agent capabilities over HTTP: POST
// {baseURL}/capabilities/{capability} with the JSON payload as body.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPInvoker(baseURL string, logger *slog.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("module", "invoker"),
		client: &http.Client{
			// Per-call deadlines come from the request context; this is
			// only a safety net against a missing stage timeout.
			Timeout: 5 * time.Minute,
		},
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, capability string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for capability %q: %w", capability, err)
	}

	url := i.baseURL + "/capabilities/" + capability

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for capability %q: %w", capability, err)
	}

	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent call %q failed: %w", capability, err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			i.logger.WarnContext(ctx, "Failed to close agent response body", "error", closeErr)
		}
	}()

	i.logger.DebugContext(ctx, "Agent call finished",
		"capability", capability, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, &AgentError{
			Capability: capability,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}

		return nil, fmt.Errorf("failed to decode response from capability %q: %w", capability, err)
	}

	return data, nil
}
