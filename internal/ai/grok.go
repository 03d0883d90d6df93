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

// GrokClient implements the xAI Grok API, which is OpenAI-compatible on the
// wire, so it reuses the openAIRequest/openAIResponse shapes.
type GrokClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	tracker      *usageTracker
}

// NewGrokClient creates an xAI adapter.
func NewGrokClient(apiKey, baseURL, model string) *GrokClient {
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	if model == "" {
		model = "grok-2-latest"
	}
	return &GrokClient{
		apiKey:       normalizeAPIKey(apiKey),
		baseURL:      baseURL,
		defaultModel: model,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		tracker:      newUsageTracker(ProviderGrok),
	}
}

// Generate implements the Client interface.
func (g *GrokClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if g.apiKey == "" {
		g.tracker.recordError()
		return nil, notConfigured(ProviderGrok)
	}

	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	apiReq := &openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}

	resp, err := g.makeRequest(ctx, apiReq)
	if err != nil {
		g.tracker.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	// xAI billing is close enough to OpenAI turbo rates for budgeting.
	cost := float64(resp.Usage.PromptTokens)/1000.0*0.002 + float64(resp.Usage.CompletionTokens)/1000.0*0.01
	duration := time.Since(startTime)
	g.tracker.record(resp.Usage.TotalTokens, cost, duration)

	return &GenerateResponse{
		Content: content,
		Model:   resp.Model,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             cost,
		},
		Duration: duration,
	}, nil
}

func (g *GrokClient) makeRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderGrok, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderGrok, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(ProviderGrok, resp.StatusCode, string(body))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ProviderError{
			Provider: ProviderGrok,
			Kind:     ErrKindBadResponse,
			Message:  "failed to decode response",
			Err:      err,
		}
	}
	if apiResp.Error != nil {
		return nil, &ProviderError{
			Provider: ProviderGrok,
			Kind:     ErrKindBadResponse,
			Message:  apiResp.Error.Message,
		}
	}

	return &apiResp, nil
}

// Provider returns the adapter identifier.
func (g *GrokClient) Provider() Provider { return ProviderGrok }

// Health checks API reachability via the models list.
func (g *GrokClient) Health(ctx context.Context) error {
	if g.apiKey == "" {
		return notConfigured(ProviderGrok)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return transportError(ProviderGrok, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ProviderGrok, resp.StatusCode, "")
	}
	return nil
}

// Usage returns current usage statistics.
func (g *GrokClient) Usage() *ProviderUsage { return g.tracker.snapshot() }
