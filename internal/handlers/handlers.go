// NexusAI API Handlers
// REST surface for the multi-provider AI gateway

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nexusai/internal/ai"
	"nexusai/internal/auth"
	"nexusai/internal/cache"
	"nexusai/internal/history"
	"nexusai/internal/settings"
	"nexusai/internal/websocket"
)

// Handler contains all the dependencies for API handlers.
type Handler struct {
	DB       *gorm.DB
	Router   *ai.Router
	Settings *settings.Store
	History  *history.Store
	Auth     *auth.Service
	Hub      *websocket.Hub
	Cache    *cache.Cache
}

// NewHandler creates a handler instance.
func NewHandler(db *gorm.DB, router *ai.Router, st *settings.Store, hist *history.Store, authService *auth.Service, hub *websocket.Hub, c *cache.Cache) *Handler {
	return &Handler{
		DB:       db,
		Router:   router,
		Settings: st,
		History:  hist,
		Auth:     authService,
		Hub:      hub,
		Cache:    c,
	}
}

// StandardResponse represents a standard API response.
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// PaginatedResponse represents a paginated API response.
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// PaginationInfo contains pagination metadata.
type PaginationInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

func newPagination(page, limit int, total int64) *PaginationInfo {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &PaginationInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Health reports service liveness plus per-provider reachability.
func (h *Handler) Health(c *gin.Context) {
	providers := make(map[string]bool)
	for provider, healthy := range h.Router.HealthStatus() {
		providers[string(provider)] = healthy
	}

	hits, misses := h.Cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": providers,
		"websocket_connections": h.Hub.ConnectionCount(),
		"cache": gin.H{
			"hits":   hits,
			"misses": misses,
		},
	})
}
