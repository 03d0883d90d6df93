package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("streaming must be disabled")
		}
		if req.Model != "llama3" {
			t.Errorf("Model = %q", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             "llama3",
			"response":          "local answer",
			"done":              true,
			"prompt_eval_count": 7,
			"eval_count":        13,
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "llama3")
	resp, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "local answer" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Fatalf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if resp.Usage.Cost != 0 {
		t.Fatalf("local inference must be free, Cost = %f", resp.Usage.Cost)
	}
}

func TestOllamaGenerateServerDown(t *testing.T) {
	t.Parallel()

	// A closed server yields a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewOllamaClient(url, "")
	_, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "x"})

	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ErrKindUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if pe.Message != "Ollama server not reachable" {
		t.Fatalf("Message = %q", pe.Message)
	}
}

func TestOllamaHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3","size":123}]}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "")
	if err := client.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
}
