package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClaudeClient implements the Anthropic messages API.
type ClaudeClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	tracker      *usageTracker
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClaudeClient creates an Anthropic adapter.
func NewClaudeClient(apiKey, baseURL, model string) *ClaudeClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	if model == "" {
		model = "claude-3-sonnet-20240229"
	}
	return &ClaudeClient{
		apiKey:       normalizeAPIKey(apiKey),
		baseURL:      baseURL,
		defaultModel: model,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		tracker:      newUsageTracker(ProviderClaude),
	}
}

// Generate implements the Client interface.
func (c *ClaudeClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		c.tracker.recordError()
		return nil, notConfigured(ProviderClaude)
	}

	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	apiReq := &claudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    []claudeMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		System:      req.System,
	}

	resp, err := c.makeRequest(ctx, apiReq)
	if err != nil {
		c.tracker.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		content = resp.Content[0].Text
	}

	totalTokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	cost := claudeCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	duration := time.Since(startTime)
	c.tracker.record(totalTokens, cost, duration)

	return &GenerateResponse{
		Content: content,
		Model:   resp.Model,
		Usage: &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      totalTokens,
			Cost:             cost,
		},
		Duration: duration,
	}, nil
}

func (c *ClaudeClient) makeRequest(ctx context.Context, req *claudeRequest) (*claudeResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderClaude, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderClaude, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(ProviderClaude, resp.StatusCode, string(body))
	}

	var apiResp claudeResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ProviderError{
			Provider: ProviderClaude,
			Kind:     ErrKindBadResponse,
			Message:  "failed to decode response",
			Err:      err,
		}
	}
	if apiResp.Error != nil {
		return nil, &ProviderError{
			Provider: ProviderClaude,
			Kind:     ErrKindBadResponse,
			Message:  apiResp.Error.Message,
		}
	}

	return &apiResp, nil
}

// Provider returns the adapter identifier.
func (c *ClaudeClient) Provider() Provider { return ProviderClaude }

// Health sends a minimal message; the messages endpoint has no cheap probe.
func (c *ClaudeClient) Health(ctx context.Context) error {
	if c.apiKey == "" {
		return notConfigured(ProviderClaude)
	}

	_, err := c.makeRequest(ctx, &claudeRequest{
		Model:     c.defaultModel,
		MaxTokens: 10,
		Messages:  []claudeMessage{{Role: "user", Content: "Hello"}},
	})
	return err
}

// Usage returns current usage statistics.
func (c *ClaudeClient) Usage() *ProviderUsage { return c.tracker.snapshot() }

// claudeCost estimates request cost from published per-1K-token pricing.
func claudeCost(inputTokens, outputTokens int) float64 {
	const inputPer1K, outputPer1K = 0.003, 0.015
	return float64(inputTokens)/1000.0*inputPer1K + float64(outputTokens)/1000.0*outputPer1K
}
