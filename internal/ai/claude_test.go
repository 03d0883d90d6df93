package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaudeGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test-12345" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}

		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxTokens == 0 {
			t.Error("max_tokens must always be set for the messages API")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "msg-1",
			"model": "claude-3-sonnet-20240229",
			"content": []map[string]string{
				{"type": "text", "text": "claude response"},
			},
			"usage": map[string]int{"input_tokens": 15, "output_tokens": 25},
		})
	}))
	defer srv.Close()

	client := NewClaudeClient("sk-ant-test-12345", srv.URL, "")
	resp, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "claude response" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 40 {
		t.Fatalf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
}

func TestClaudeGenerateNoKey(t *testing.T) {
	t.Parallel()

	client := NewClaudeClient("", "", "")
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hello"})

	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ErrKindNotConfigured {
		t.Fatalf("err = %v, want not_configured", err)
	}
	if pe.Message != "claude API key not configured" {
		t.Fatalf("Message = %q", pe.Message)
	}
}

func TestClaudeOverloadedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
	}))
	defer srv.Close()

	client := NewClaudeClient("sk-ant-test", srv.URL, "")
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "x"})

	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ErrKindUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if !pe.Retryable() {
		t.Fatal("overloaded must be retryable")
	}
}
