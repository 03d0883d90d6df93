package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nexusai/internal/ai"
	"nexusai/internal/logging"
	"nexusai/internal/metrics"
	"nexusai/internal/middleware"
	"nexusai/internal/settings"
	"nexusai/internal/websocket"
)

// ProcessRequest is the payload for a routed AI request.
type ProcessRequest struct {
	Module   string                 `json:"module" binding:"required"`
	Message  string                 `json:"message" binding:"required"`
	Provider string                 `json:"provider,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Process routes a module request through the AI router and returns the
// normalized envelope. Provider failures surface as error-typed envelopes
// with HTTP 200; only malformed requests get a 4xx.
func (h *Handler) Process(c *gin.Context) {
	var body ProcessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "module and message are required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if len(body.Message) > ai.MaxPromptLength {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   fmt.Sprintf("message exceeds maximum length of %d characters", ai.MaxPromptLength),
			Code:    "MESSAGE_TOO_LONG",
		})
		return
	}

	var provider ai.Provider
	if body.Provider != "" {
		p, err := ai.ParseProvider(body.Provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, StandardResponse{
				Success: false,
				Error:   err.Error(),
				Code:    "UNKNOWN_PROVIDER",
			})
			return
		}
		provider = p
	}

	req := &ai.Request{
		Module:   ai.Module(body.Module),
		Message:  body.Message,
		Provider: provider,
		Model:    body.Model,
		Context:  body.Context,
	}

	userID, authed := middleware.GetUserID(c)
	if authed {
		req.UserID = strconv.FormatUint(uint64(userID), 10)
	}

	// The memory module folds recent conversation history into its prompt.
	if ai.Module(body.Module) == ai.ModuleMemory {
		if req.Context == nil {
			req.Context = make(map[string]interface{})
		}
		if _, ok := req.Context["recent_context"]; !ok {
			if recent, err := h.History.RecentContext(c.Request.Context(), 10); err == nil && recent != "" {
				req.Context["recent_context"] = recent
			}
		}
	}

	start := time.Now()
	env := h.Router.Process(c.Request.Context(), req)

	status := "success"
	if env.IsError() {
		status = "error"
	}
	var promptTokens, completionTokens int
	var cost float64
	if env.Usage != nil {
		promptTokens = env.Usage.PromptTokens
		completionTokens = env.Usage.CompletionTokens
		cost = env.Usage.Cost
	}
	metrics.Get().RecordAIRequest(body.Module, string(env.Provider), status,
		time.Since(start).Seconds(), promptTokens, completionTokens, cost)

	var recordUser *uint
	if authed {
		recordUser = &userID
	}
	if err := h.History.Record(c.Request.Context(), req, env, recordUser); err != nil {
		logging.S().Errorw("failed to record conversation", "request_id", req.ID, "error", err)
	}

	// Successful memory module responses become long-lived notes.
	if ai.Module(body.Module) == ai.ModuleMemory && !env.IsError() {
		if content := env.Payload; content != "" {
			if err := h.History.StoreMemory(c.Request.Context(), "conversation", content, 0.5, ""); err != nil {
				logging.S().Errorw("failed to store memory note", "request_id", req.ID, "error", err)
			}
		}
	}

	if authed {
		h.Hub.SendToUser(userID, websocket.Message{
			Type:   websocket.MessageTypeResponse,
			UserID: userID,
			Data:   env,
		})
	}

	c.JSON(http.StatusOK, env)
}

// providerView is a credential row safe to return to clients.
type providerView struct {
	Provider    string   `json:"provider"`
	DisplayName string   `json:"display_name"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Model       string   `json:"model"`
	Models      []string `json:"models"`
	Enabled     bool     `json:"enabled"`
	Connected   bool     `json:"connected"`
	Healthy     bool     `json:"healthy"`
}

// ListProviders returns every provider's configuration with masked keys.
func (h *Handler) ListProviders(c *gin.Context) {
	health := h.Router.HealthStatus()

	rows := h.Settings.Providers()
	views := make([]providerView, 0, len(rows))
	for _, row := range rows {
		views = append(views, providerView{
			Provider:    row.Provider,
			DisplayName: row.DisplayName,
			APIKey:      ai.MaskAPIKey(row.APIKey),
			BaseURL:     row.BaseURL,
			Model:       row.Model,
			Models:      row.SupportedModels(),
			Enabled:     row.Enabled,
			Connected:   row.Connected,
			Healthy:     health[ai.Provider(row.Provider)],
		})
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"providers": views},
	})
}

// ConfigureProviderRequest is the payload for provider reconfiguration.
// Omitted fields are left unchanged.
type ConfigureProviderRequest struct {
	APIKey  *string `json:"api_key,omitempty"`
	BaseURL *string `json:"base_url,omitempty"`
	Model   *string `json:"model,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ConfigureProvider updates one provider's stored credential and rebuilds
// the router's adapters so the change takes effect immediately.
func (h *Handler) ConfigureProvider(c *gin.Context) {
	provider, err := ai.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   err.Error(),
			Code:    "UNKNOWN_PROVIDER",
		})
		return
	}

	var body ConfigureProviderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	row, err := h.Settings.Configure(provider, settings.ConfigureUpdate{
		APIKey:  body.APIKey,
		BaseURL: body.BaseURL,
		Model:   body.Model,
		Enabled: body.Enabled,
	})
	if err != nil {
		if errors.Is(err, settings.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, StandardResponse{
				Success: false,
				Error:   "Provider not found",
				Code:    "NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to update provider configuration",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	h.Router.ReplaceClients(h.Settings.BuildClients())

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{"provider": providerView{
			Provider:    row.Provider,
			DisplayName: row.DisplayName,
			APIKey:      ai.MaskAPIKey(row.APIKey),
			BaseURL:     row.BaseURL,
			Model:       row.Model,
			Models:      row.SupportedModels(),
			Enabled:     row.Enabled,
			Connected:   row.Connected,
		}},
	})
}

// TestProvider probes a provider with its stored credential and records
// the connectivity outcome.
func (h *Handler) TestProvider(c *gin.Context) {
	provider, err := ai.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   err.Error(),
			Code:    "UNKNOWN_PROVIDER",
		})
		return
	}

	client, err := h.Settings.BuildClient(provider)
	if err != nil {
		c.JSON(http.StatusNotFound, StandardResponse{
			Success: false,
			Error:   "Provider not found",
			Code:    "NOT_FOUND",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	start := time.Now()
	healthErr := client.Health(ctx)
	latency := time.Since(start)

	connected := healthErr == nil
	if err := h.Settings.SetConnected(provider, connected); err != nil {
		logging.S().Errorw("failed to persist connectivity", "provider", provider, "error", err)
	}
	metrics.Get().SetProviderHealth(string(provider), connected)

	if !connected {
		message := healthErr.Error()
		if pe, ok := ai.AsProviderError(healthErr); ok {
			message = pe.Message
		}
		c.JSON(http.StatusOK, StandardResponse{
			Success: false,
			Error:   message,
			Code:    "PROVIDER_UNREACHABLE",
			Data:    gin.H{"provider": provider, "connected": false, "latency_ms": latency.Milliseconds()},
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"provider": provider, "connected": true, "latency_ms": latency.Milliseconds()},
	})
}

// GetUsage returns per-provider usage accounting and health.
func (h *Handler) GetUsage(c *gin.Context) {
	usage := make(map[string]*ai.ProviderUsage)
	for provider, u := range h.Router.ProviderUsage() {
		usage[string(provider)] = u
	}

	health := make(map[string]bool)
	for provider, healthy := range h.Router.HealthStatus() {
		health[string(provider)] = healthy
	}

	hits, misses := h.Cache.Stats()
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{
			"usage":  usage,
			"health": health,
			"cache":  gin.H{"hits": hits, "misses": misses},
		},
	})
}

// GetHistory returns the authenticated user's conversation history,
// newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, StandardResponse{
			Success: false,
			Error:   "Authentication required",
			Code:    "UNAUTHORIZED",
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	conversations, total, err := h.History.List(c.Request.Context(), &userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to load history",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: StandardResponse{
			Success: true,
			Data:    gin.H{"conversations": conversations},
		},
		Pagination: newPagination(page, limit, total),
	})
}

// GetMemories searches stored notes by category and content substring.
func (h *Handler) GetMemories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	memories, err := h.History.SearchMemories(c.Request.Context(), c.Query("category"), c.Query("q"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to load memories",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"memories": memories},
	})
}
