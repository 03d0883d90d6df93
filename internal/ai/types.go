package ai

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies an AI completion backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderGrok   Provider = "grok"
	ProviderOllama Provider = "ollama"
)

// Providers lists every known provider in preference order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderClaude, ProviderGrok, ProviderOllama}
}

// ParseProvider validates a provider identifier. Unknown names are rejected
// rather than silently routed to a default.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderClaude, ProviderGrok, ProviderOllama:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider: %s", s)
}

// Module is a task category with its own prompt template and payload field.
type Module string

const (
	ModuleResearch Module = "research"
	ModuleCoding   Module = "coding"
	ModuleDecision Module = "decision"
	ModuleAnalysis Module = "analysis"
	ModuleMemory   Module = "memory"
	ModuleImage    Module = "image"
	ModuleSocial   Module = "social"
	ModuleFile     Module = "file"
	ModuleBrowser  Module = "browser"
)

// Modules lists every recognized task category.
func Modules() []Module {
	return []Module{
		ModuleResearch, ModuleCoding, ModuleDecision, ModuleAnalysis,
		ModuleMemory, ModuleImage, ModuleSocial, ModuleFile, ModuleBrowser,
	}
}

// ParseModule validates a module tag.
func ParseModule(s string) (Module, error) {
	switch Module(s) {
	case ModuleResearch, ModuleCoding, ModuleDecision, ModuleAnalysis,
		ModuleMemory, ModuleImage, ModuleSocial, ModuleFile, ModuleBrowser:
		return Module(s), nil
	}
	return "", fmt.Errorf("unknown module: %s", s)
}

// PayloadField returns the envelope field name a module's result is reported
// under. The field names mirror what the dashboard renders per screen.
func (m Module) PayloadField() string {
	switch m {
	case ModuleResearch:
		return "findings"
	case ModuleCoding:
		return "code"
	case ModuleDecision:
		return "decision"
	case ModuleAnalysis:
		return "analysis"
	case ModuleMemory:
		return "insights"
	case ModuleImage:
		return "concept"
	case ModuleSocial:
		return "drafts"
	default: // file, browser
		return "plan"
	}
}

// Request is a single routed request: one task category, one user message,
// optional provider/model overrides and free-form context. Consumed once.
type Request struct {
	ID       string                 `json:"id"`
	Module   Module                 `json:"module"`
	Message  string                 `json:"message"`
	Provider Provider               `json:"provider,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
	UserID   string                 `json:"user_id,omitempty"`
}

// Envelope is the normalized response returned to callers regardless of which
// provider served the request. Type mirrors the module tag, or "error".
// Provider and Timestamp are always set, success or failure, so callers can
// render a uniform "who answered, when" header.
type Envelope struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Provider  Provider      `json:"provider,omitempty"`
	Model     string        `json:"model,omitempty"`
	Timestamp string        `json:"timestamp"`
	Payload   string        `json:"-"`
	Usage     *Usage        `json:"usage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// EnvelopeTypeError marks envelopes produced from a failure.
const EnvelopeTypeError = "error"

// IsError reports whether the envelope carries a failure instead of a payload.
func (e *Envelope) IsError() bool {
	return e.Type == EnvelopeTypeError
}

// GenerateRequest is the adapter-level request: the already-templated prompt
// plus generation parameters.
type GenerateRequest struct {
	ID          string
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float32
	Context     map[string]interface{}
}

// GenerateResponse is the adapter-level result.
type GenerateResponse struct {
	Content  string
	Model    string
	Usage    *Usage
	Duration time.Duration
}

// Usage represents token and cost accounting for a single generation.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// Client is implemented by every provider adapter.
type Client interface {
	// Generate issues one completion request and extracts the response text.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Provider returns the adapter's identifier.
	Provider() Provider

	// Health probes the backend for reachability.
	Health(ctx context.Context) error

	// Usage returns a copy of accumulated usage statistics.
	Usage() *ProviderUsage
}

// RouterConfig controls provider selection.
type RouterConfig struct {
	// DefaultProvider answers requests that carry no explicit provider.
	DefaultProvider Provider `json:"default_provider"`

	// FallbackOrder is walked when the selected provider fails or is
	// rate limited.
	FallbackOrder map[Provider][]Provider `json:"fallback_order"`

	// RateLimits are per-provider requests per minute.
	RateLimits map[Provider]int `json:"rate_limits"`
}

// DefaultRouterConfig returns the stock routing configuration. Ollama has no
// fallbacks so a local request never silently turns into a paid one.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		DefaultProvider: ProviderOpenAI,
		FallbackOrder: map[Provider][]Provider{
			ProviderOpenAI: {ProviderClaude, ProviderGrok, ProviderOllama},
			ProviderClaude: {ProviderOpenAI, ProviderGrok, ProviderOllama},
			ProviderGrok:   {ProviderOpenAI, ProviderClaude, ProviderOllama},
			ProviderOllama: {},
		},
		RateLimits: map[Provider]int{
			ProviderOpenAI: 80,
			ProviderClaude: 100,
			ProviderGrok:   100,
			ProviderOllama: 1000,
		},
	}
}

// ProviderUsage tracks accumulated statistics for one adapter.
type ProviderUsage struct {
	Provider     Provider  `json:"provider"`
	RequestCount int64     `json:"request_count"`
	TotalTokens  int64     `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	AvgLatency   float64   `json:"avg_latency"`
	ErrorCount   int64     `json:"error_count"`
	LastUsed     time.Time `json:"last_used"`
}

// MaxPromptLength bounds user messages before templating.
const MaxPromptLength = 100_000
