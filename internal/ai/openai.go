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

// OpenAIClient implements the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	tracker      *usageTracker
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates an OpenAI adapter. baseURL defaults to the public
// API; override it for OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAIClient{
		apiKey:       normalizeAPIKey(apiKey),
		baseURL:      baseURL,
		defaultModel: model,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		tracker:      newUsageTracker(ProviderOpenAI),
	}
}

// Generate implements the Client interface.
func (o *OpenAIClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if o.apiKey == "" {
		o.tracker.recordError()
		return nil, notConfigured(ProviderOpenAI)
	}

	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = o.defaultModel
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

	resp, err := o.makeRequest(ctx, apiReq)
	if err != nil {
		o.tracker.recordError()
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	cost := openAICost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, model)
	duration := time.Since(startTime)
	o.tracker.record(resp.Usage.TotalTokens, cost, duration)

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

func (o *OpenAIClient) makeRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderOpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(ProviderOpenAI, resp.StatusCode, string(body))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ProviderError{
			Provider: ProviderOpenAI,
			Kind:     ErrKindBadResponse,
			Message:  "failed to decode response",
			Err:      err,
		}
	}
	if apiResp.Error != nil {
		return nil, &ProviderError{
			Provider: ProviderOpenAI,
			Kind:     ErrKindBadResponse,
			Message:  apiResp.Error.Message,
		}
	}

	return &apiResp, nil
}

// Provider returns the adapter identifier.
func (o *OpenAIClient) Provider() Provider { return ProviderOpenAI }

// Health checks API reachability and credential validity via the models list.
func (o *OpenAIClient) Health(ctx context.Context) error {
	if o.apiKey == "" {
		return notConfigured(ProviderOpenAI)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return transportError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ProviderOpenAI, resp.StatusCode, "")
	}
	return nil
}

// Usage returns current usage statistics.
func (o *OpenAIClient) Usage() *ProviderUsage { return o.tracker.snapshot() }

// openAICost estimates request cost from published per-1K-token pricing.
func openAICost(inputTokens, outputTokens int, model string) float64 {
	var inputPer1K, outputPer1K float64
	switch model {
	case "gpt-4-turbo":
		inputPer1K, outputPer1K = 0.01, 0.03
	case "gpt-4":
		inputPer1K, outputPer1K = 0.03, 0.06
	default:
		inputPer1K, outputPer1K = 0.01, 0.03
	}
	return float64(inputTokens)/1000.0*inputPer1K + float64(outputTokens)/1000.0*outputPer1K
}
