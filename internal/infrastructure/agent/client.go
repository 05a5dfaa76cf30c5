// Package agent implements the HTTP client for the external pitch
// generation service. Jobs run as named workflows: a run request returns an
// execution id used as the correlation token, and results are fetched from a
// separate results endpoint that stays empty until the workflow finishes.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
	"github.com/pitchforge/pitch-builder-service/internal/pkg/config"
)

const guidancePollInterval = 2 * time.Second

// Client talks to the workflow API
type Client struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	pitchWorkflow    string
	guidanceWorkflow string
	logger           *slog.Logger
}

// NewClient creates an agent client from configuration
func NewClient(cfg *config.AgentConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		pitchWorkflow:    cfg.PitchWorkflow,
		guidanceWorkflow: cfg.GuidanceWorkflow,
		logger:           logger,
	}
}

type runRequest struct {
	InputVariables    interface{} `json:"input_variables"`
	WorkflowLabelName string      `json:"workflow_label_name,omitempty"`
}

type runResponse struct {
	Success                    bool   `json:"success"`
	WorkflowVersionExecutionID int64  `json:"workflow_version_execution_id"`
	Message                    string `json:"message"`
}

// SubmitPitch starts a pitch generation workflow and returns the execution
// id as the correlation token.
func (c *Client) SubmitPitch(ctx context.Context, req generation.PitchRequest) (string, error) {
	return c.runWorkflow(ctx, c.pitchWorkflow, runRequest{
		InputVariables:    req,
		WorkflowLabelName: req.AgentVersion,
	})
}

// PollPitch reads the result of an outstanding workflow execution. Pending
// executions report Done false; a non-empty body is the finished pitch.
func (c *Client) PollPitch(ctx context.Context, token string) (generation.PollResult, error) {
	endpoint := fmt.Sprintf("%s/workflow-version-execution-results?workflow_version_execution_id=%s",
		c.baseURL, url.QueryEscape(token))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("failed to build poll request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return generation.PollResult{}, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return generation.PollResult{}, fmt.Errorf("poll returned status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return generation.PollResult{}, fmt.Errorf("failed to read poll response: %w", err)
	}

	content := parseResultBody(body)
	if content == "" {
		return generation.PollResult{}, nil
	}
	return generation.PollResult{Done: true, Content: content}, nil
}

// GenerateGuidance runs the advisory workflow to completion. It is a
// smaller, faster agent, so the submit-then-poll cycle happens inline.
func (c *Client) GenerateGuidance(ctx context.Context, req generation.GuidanceRequest) (string, error) {
	token, err := c.runWorkflow(ctx, c.guidanceWorkflow, runRequest{InputVariables: req})
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(guidancePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("guidance request aborted: %w", ctx.Err())
		case <-ticker.C:
		}

		result, err := c.PollPitch(ctx, token)
		if err != nil {
			c.logger.Debug("guidance poll failed",
				slog.String("execution_id", token),
				"error", err)
			continue
		}
		if result.Done {
			return result.Content, nil
		}
	}
}

func (c *Client) runWorkflow(ctx context.Context, workflow string, payload runRequest) (string, error) {
	if workflow == "" {
		return "", fmt.Errorf("workflow name is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/run", c.baseURL, url.PathEscape(workflow))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("workflow run request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("workflow run returned status %d: %s", resp.StatusCode, respBody)
	}

	var run runResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", fmt.Errorf("failed to decode workflow response: %w", err)
	}
	if !run.Success || run.WorkflowVersionExecutionID == 0 {
		return "", fmt.Errorf("workflow run rejected: %s", run.Message)
	}

	c.logger.Info("workflow started",
		slog.String("workflow", workflow),
		slog.Int64("execution_id", run.WorkflowVersionExecutionID))

	return fmt.Sprintf("%d", run.WorkflowVersionExecutionID), nil
}

// parseResultBody extracts the finished text from a results response. The
// endpoint returns either a bare JSON string or an object with the content
// under output/result.
func parseResultBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(body, &asObject); err == nil {
		for _, key := range []string{"output", "result", "content"} {
			if v, ok := asObject[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	return trimmed
}
