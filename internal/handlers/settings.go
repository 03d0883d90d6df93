package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexusai/internal/logging"
)

// GetSettings returns all stored dashboard preferences.
func (h *Handler) GetSettings(c *gin.Context) {
	prefs, err := h.Settings.Preferences()
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to load settings",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"settings": prefs},
	})
}

// UpdateSettings upserts the given preference keys.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Expected a non-empty object of string settings",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	for key, value := range body {
		if err := h.Settings.SetPreference(key, value); err != nil {
			c.JSON(http.StatusInternalServerError, StandardResponse{
				Success: false,
				Error:   "Failed to save settings",
				Code:    "DATABASE_ERROR",
			})
			return
		}
	}

	prefs, err := h.Settings.Preferences()
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to load settings",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"settings": prefs},
	})
}

// ResetSettings restores provider credentials and preferences to their
// environment-seeded defaults and rebuilds the router's adapters.
func (h *Handler) ResetSettings(c *gin.Context) {
	if err := h.Settings.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to reset settings",
			Code:    "DATABASE_ERROR",
		})
		return
	}

	h.Router.ReplaceClients(h.Settings.BuildClients())
	logging.S().Infow("settings reset to defaults")

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Message: "Settings restored to defaults",
	})
}
