package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexusai/internal/ai"
	"nexusai/internal/auth"
	"nexusai/internal/cache"
	"nexusai/internal/history"
	"nexusai/internal/middleware"
	"nexusai/internal/settings"
	"nexusai/internal/websocket"
	"nexusai/pkg/models"
)

// stubClient is a canned provider adapter for endpoint tests.
type stubClient struct {
	provider ai.Provider
	content  string
	err      error
}

func (s *stubClient) Generate(context.Context, *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{
		Content:  s.content,
		Model:    "stub-model",
		Usage:    &ai.Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15, Cost: 0.0005},
		Duration: time.Millisecond,
	}, nil
}

func (s *stubClient) Provider() ai.Provider          { return s.provider }
func (s *stubClient) Health(context.Context) error   { return s.err }
func (s *stubClient) Usage() *ai.ProviderUsage       { return &ai.ProviderUsage{Provider: s.provider} }

type testStack struct {
	engine  *gin.Engine
	handler *Handler
}

func newTestStack(t *testing.T, clients ...ai.Client) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ProviderCredential{},
		&models.Preference{},
		&models.Conversation{},
		&models.Memory{},
	))

	settingsStore, err := settings.NewStore(db)
	require.NoError(t, err)

	if len(clients) == 0 {
		clients = []ai.Client{&stubClient{provider: ai.ProviderOpenAI, content: "stub answer"}}
	}
	router := ai.NewRouter(clients, ai.DefaultRouterConfig(), nil)

	cacheLayer := cache.New("", nil)
	historyStore := history.NewStore(db, cacheLayer)
	authService := auth.NewService(db, "test-secret")

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	h := NewHandler(db, router, settingsStore, historyStore, authService, hub, cacheLayer)

	engine := gin.New()
	engine.GET("/health", h.Health)
	v1 := engine.Group("/api/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(authService))
	protected.POST("/process", h.Process)
	protected.GET("/providers", h.ListProviders)
	protected.PUT("/providers/:provider", h.ConfigureProvider)
	protected.POST("/providers/:provider/test", h.TestProvider)
	protected.GET("/usage", h.GetUsage)
	protected.GET("/history", h.GetHistory)
	protected.GET("/memories", h.GetMemories)
	protected.GET("/settings", h.GetSettings)
	protected.PUT("/settings", h.UpdateSettings)
	protected.POST("/settings/reset", h.ResetSettings)
	protected.DELETE("/settings", h.ResetSettings)

	return &testStack{engine: engine, handler: h}
}

func (ts *testStack) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testStack) registerAndLogin(t *testing.T) string {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "tester",
		"email":    "tester@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"access_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Tokens.AccessToken)
	return resp.Data.Tokens.AccessToken
}

func TestProcessEndpoint(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", token, gin.H{
		"module":  "research",
		"message": "geothermal energy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "research", env["type"])
	assert.Equal(t, "openai", env["provider"])
	assert.Equal(t, "stub answer", env["findings"])
	assert.NotEmpty(t, env["timestamp"])
	assert.NotEmpty(t, env["id"])
}

func TestProcessUnknownModuleStillHTTP200(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", token, gin.H{
		"module":  "telepathy",
		"message": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "error", env["type"])
	assert.Equal(t, "Unknown module: telepathy", env["error"])
}

func TestProcessUnknownProviderRejected(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", token, gin.H{
		"module":   "research",
		"message":  "hello",
		"provider": "gemini",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessRequiresAuth(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", "", gin.H{
		"module":  "research",
		"message": "hello",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProcessRecordsHistory(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", token, gin.H{
		"module":  "coding",
		"message": "write a fizzbuzz",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Conversations []models.Conversation `json:"conversations"`
		} `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Pagination.Total)
	assert.Equal(t, "coding", resp.Data.Conversations[0].Module)
	assert.Equal(t, "write a fizzbuzz", resp.Data.Conversations[0].UserMessage)
}

func TestListProvidersMasksKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-proj-super-secret-value")

	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodGet, "/api/v1/providers", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "sk-proj-super-secret-value")
	assert.Contains(t, body, "openai")
	assert.Contains(t, body, "ollama")
}

func TestConfigureProvider(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPut, "/api/v1/providers/claude", token, gin.H{
		"api_key": "sk-ant-new-key-12345",
		"model":   "claude-3-haiku-20240307",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Provider providerView `json:"provider"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "claude-3-haiku-20240307", resp.Data.Provider.Model)
	assert.NotEqual(t, "sk-ant-new-key-12345", resp.Data.Provider.APIKey)
	assert.False(t, resp.Data.Provider.Connected)

	// Unknown provider names are rejected outright.
	w = ts.do(t, http.MethodPut, "/api/v1/providers/gemini", token, gin.H{"model": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPut, "/api/v1/settings", token, gin.H{"theme": "dark", "default_view": "research"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/settings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Settings map[string]string `json:"settings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "dark", resp.Data.Settings["theme"])

	w = ts.do(t, http.MethodPost, "/api/v1/settings/reset", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/settings", token, nil)
	resp.Data.Settings = nil // json.Unmarshal merges into a non-nil map
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Settings)

	// DELETE is an alias for reset.
	w = ts.do(t, http.MethodPut, "/api/v1/settings", token, gin.H{"theme": "light"})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/v1/settings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/settings", token, nil)
	resp.Data.Settings = nil // json.Unmarshal merges into a non-nil map
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Settings)
}

func TestProcessMemoryModuleStoresNote(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodPost, "/api/v1/process", token, gin.H{
		"module":  "memory",
		"message": "remember that I prefer metric units",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/memories?q=stub", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Memories []struct {
				Category string `json:"category"`
				Content  string `json:"content"`
			} `json:"memories"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Memories, 1)
	assert.Equal(t, "conversation", resp.Data.Memories[0].Category)
	assert.Equal(t, "stub answer", resp.Data.Memories[0].Content)

	// Category filter that matches nothing comes back empty.
	w = ts.do(t, http.MethodGet, "/api/v1/memories?category=fact", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Memories)
}

func TestUsageEndpoint(t *testing.T) {
	ts := newTestStack(t)
	token := ts.registerAndLogin(t)

	w := ts.do(t, http.MethodGet, "/api/v1/usage", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Usage  map[string]interface{} `json:"usage"`
			Health map[string]bool        `json:"health"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Data.Usage, "openai")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "refresher",
		"email":    "refresher@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var reg struct {
		Data struct {
			Tokens struct {
				RefreshToken string `json:"refresh_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	w = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": reg.Data.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
