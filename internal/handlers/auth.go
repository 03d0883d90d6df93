package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nexusai/internal/auth"
	"nexusai/internal/middleware"
	"nexusai/pkg/models"
)

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	user, err := h.Auth.Register(&req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			c.JSON(http.StatusConflict, StandardResponse{
				Success: false,
				Error:   "User with this email or username already exists",
				Code:    "USER_EXISTS",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to create user",
			Code:    "USER_CREATION_FAILED",
		})
		return
	}

	tokens, err := h.Auth.IssueTokens(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to generate authentication tokens",
			Code:    "TOKEN_GENERATION_FAILED",
		})
		return
	}

	c.JSON(http.StatusCreated, StandardResponse{
		Success: true,
		Data: gin.H{
			"user":   user,
			"tokens": tokens,
		},
	})
}

// Login handles user authentication.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	user, tokens, err := h.Auth.Login(&req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, StandardResponse{
			Success: false,
			Error:   "Invalid username or password",
			Code:    "INVALID_CREDENTIALS",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{
			"user":   user,
			"tokens": tokens,
		},
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Refresh token is required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	tokens, err := h.Auth.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, StandardResponse{
			Success: false,
			Error:   "Invalid or expired refresh token",
			Code:    "INVALID_TOKEN",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"tokens": tokens},
	})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, StandardResponse{
			Success: false,
			Error:   "Authentication required",
			Code:    "UNAUTHORIZED",
		})
		return
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, StandardResponse{
			Success: false,
			Error:   "User not found",
			Code:    "NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    gin.H{"user": user},
	})
}
