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

// OllamaClient implements the local Ollama generate API. No credential is
// required; the model runs on the user's machine.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	tracker      *usageTracker
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Model          string `json:"model"`
	Response       string `json:"response"`
	Done           bool   `json:"done"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount      int    `json:"eval_count"`
	EvalDuration   int64  `json:"eval_duration"`
}

// ollamaTagsResponse is the /api/tags shape used for health probes.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// NewOllamaClient creates an Ollama adapter.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama2"
	}
	return &OllamaClient{
		baseURL:      baseURL,
		defaultModel: model,
		// Local inference with large models can be slow.
		httpClient: &http.Client{Timeout: 900 * time.Second},
		tracker:    newUsageTracker(ProviderOllama),
	}
}

// Generate implements the Client interface.
func (o *OllamaClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	apiReq := &ollamaRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}

	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		o.tracker.recordError()
		return nil, &ProviderError{
			Provider: ProviderOllama,
			Kind:     ErrKindUnavailable,
			Message:  "Ollama server not reachable",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		o.tracker.recordError()
		return nil, transportError(ProviderOllama, err)
	}

	if resp.StatusCode != http.StatusOK {
		o.tracker.recordError()
		return nil, statusError(ProviderOllama, resp.StatusCode, string(body))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		o.tracker.recordError()
		return nil, &ProviderError{
			Provider: ProviderOllama,
			Kind:     ErrKindBadResponse,
			Message:  "failed to decode response",
			Err:      err,
		}
	}

	totalTokens := apiResp.PromptEvalCount + apiResp.EvalCount
	duration := time.Since(startTime)
	// Local model, cost is always zero.
	o.tracker.record(totalTokens, 0, duration)

	return &GenerateResponse{
		Content: apiResp.Response,
		Model:   apiResp.Model,
		Usage: &Usage{
			PromptTokens:     apiResp.PromptEvalCount,
			CompletionTokens: apiResp.EvalCount,
			TotalTokens:      totalTokens,
			Cost:             0,
		},
		Duration: duration,
	}, nil
}

// Provider returns the adapter identifier.
func (o *OllamaClient) Provider() Provider { return ProviderOllama }

// Health lists installed models to verify the local server is up.
func (o *OllamaClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return &ProviderError{
			Provider: ProviderOllama,
			Kind:     ErrKindUnavailable,
			Message:  "Ollama server not reachable",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ProviderOllama, resp.StatusCode, "")
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return &ProviderError{
			Provider: ProviderOllama,
			Kind:     ErrKindBadResponse,
			Message:  "failed to decode tags response",
			Err:      err,
		}
	}
	return nil
}

// Usage returns current usage statistics.
func (o *OllamaClient) Usage() *ProviderUsage { return o.tracker.snapshot() }
