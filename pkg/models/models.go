package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an account on the NexusAI dashboard.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`

	IsActive bool `json:"is_active" gorm:"default:true"`
	IsAdmin  bool `json:"is_admin" gorm:"default:false"`

	// Preferences surfaced in the settings panel.
	PreferredProvider string `json:"preferred_provider" gorm:"default:'openai'"`
	PreferredTheme    string `json:"preferred_theme" gorm:"default:'nexus-dark'"`

	Conversations []Conversation `json:"-" gorm:"foreignKey:UserID"`
}

// ProviderCredential persists one provider's configuration: key, base URL and
// model selection, plus the connectivity flag maintained by the test endpoint.
type ProviderCredential struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Provider    string `json:"provider" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"display_name"`
	APIKey      string `json:"-"`
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	// Models is a comma-separated list of identifiers the provider supports.
	Models    string `json:"models"`
	Enabled   bool   `json:"enabled" gorm:"default:true"`
	Connected bool   `json:"connected" gorm:"default:false"`
}

// SupportedModels splits the stored model list.
func (p *ProviderCredential) SupportedModels() []string {
	if p.Models == "" {
		return nil
	}
	return strings.Split(p.Models, ",")
}

// Preference is a namespaced dashboard preference key/value pair.
type Preference struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UpdatedAt time.Time `json:"updated_at"`

	Namespace string `json:"namespace" gorm:"uniqueIndex:idx_pref_ns_key;not null"`
	Key       string `json:"key" gorm:"uniqueIndex:idx_pref_ns_key;not null"`
	Value     string `json:"value"`
}

// Conversation records one processed request and its outcome.
type Conversation struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	RequestID   string `json:"request_id" gorm:"index"`
	UserID      *uint  `json:"user_id,omitempty" gorm:"index"`
	Module      string `json:"module" gorm:"index"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	UserMessage string `json:"user_message"`
	Response    string `json:"response"`
	Status      string `json:"status" gorm:"default:'completed'"` // completed, failed
	ErrorMsg    string `json:"error_msg,omitempty"`
	TokensUsed  int    `json:"tokens_used"`
	Cost        float64 `json:"cost"`
	DurationMS  int64  `json:"duration_ms"`
}

// Memory is a long-lived note written by the research and memory modules.
type Memory struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	Category   string  `json:"category" gorm:"index"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance" gorm:"default:0.5"`
	Tags       string  `json:"tags"`
}
