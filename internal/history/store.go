// Package history records processed requests and long-lived memory notes,
// and supplies conversation context to the memory module.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"nexusai/internal/ai"
	"nexusai/internal/cache"
	"nexusai/pkg/models"
)

const recentCacheKey = "history:recent"

// Store persists conversations and memories. Recent-conversation reads go
// through the cache layer; writes invalidate it.
type Store struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewStore wires the history store. cache may be nil.
func NewStore(db *gorm.DB, c *cache.Cache) *Store {
	return &Store{db: db, cache: c}
}

// Record writes one processed request outcome.
func (s *Store) Record(ctx context.Context, req *ai.Request, env *ai.Envelope, userID *uint) error {
	conv := models.Conversation{
		RequestID:   req.ID,
		UserID:      userID,
		Module:      string(req.Module),
		Provider:    string(env.Provider),
		Model:       env.Model,
		UserMessage: req.Message,
		Status:      "completed",
		DurationMS:  env.Duration.Milliseconds(),
	}

	if env.IsError() {
		conv.Status = "failed"
		conv.ErrorMsg = env.Error
	} else {
		conv.Response = env.Payload
	}
	if env.Usage != nil {
		conv.TokensUsed = env.Usage.TotalTokens
		conv.Cost = env.Usage.Cost
	}

	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return fmt.Errorf("record conversation: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(ctx, recentCacheKey)
	}
	return nil
}

// Recent returns the latest n conversations, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]models.Conversation, error) {
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, recentCacheKey); ok {
			var cached []models.Conversation
			if err := json.Unmarshal(raw, &cached); err == nil && len(cached) >= n {
				return cached[:n], nil
			}
		}
	}

	var rows []models.Conversation
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load recent conversations: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(rows); err == nil {
			s.cache.Set(ctx, recentCacheKey, raw, time.Minute)
		}
	}
	return rows, nil
}

// List returns one page of conversation history plus the total row count.
func (s *Store) List(ctx context.Context, userID *uint, page, limit int) ([]models.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Conversation{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Conversation
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// RecentContext formats the latest conversations for the memory module's
// prompt, oldest first so the model reads them in order.
func (s *Store) RecentContext(ctx context.Context, n int) (string, error) {
	rows, err := s.Recent(ctx, n)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n", row.CreatedAt.Format(time.RFC3339), row.Module, row.Provider, row.UserMessage)
		if row.Response != "" {
			fmt.Fprintf(&b, "  -> %s\n", truncate(row.Response, 500))
		}
	}
	return b.String(), nil
}

// StoreMemory writes a long-lived note.
func (s *Store) StoreMemory(ctx context.Context, category, content string, importance float64, tags string) error {
	mem := models.Memory{
		Category:   category,
		Content:    content,
		Importance: importance,
		Tags:       tags,
	}
	return s.db.WithContext(ctx).Create(&mem).Error
}

// SearchMemories returns notes matching a category and/or content substring.
func (s *Store) SearchMemories(ctx context.Context, category, query string, limit int) ([]models.Memory, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.Memory{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if query != "" {
		q = q.Where("content LIKE ?", "%"+query+"%")
	}

	var rows []models.Memory
	err := q.Order("importance DESC, created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
