package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexusai/internal/ai"
	"nexusai/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Memory{}); err != nil {
		t.Fatal(err)
	}
	return NewStore(db, nil)
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	req := &ai.Request{ID: "req-1", Module: ai.ModuleResearch, Message: "tidal power"}
	env := &ai.Envelope{
		ID:       "req-1",
		Type:     "research",
		Provider: ai.ProviderOpenAI,
		Model:    "gpt-4",
		Payload:  "the findings",
		Usage:    &ai.Usage{TotalTokens: 50, Cost: 0.002},
		Duration: 800 * time.Millisecond,
	}
	if err := store.Record(ctx, req, env, nil); err != nil {
		t.Fatal(err)
	}

	rows, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d", len(rows))
	}

	row := rows[0]
	if row.RequestID != "req-1" || row.Status != "completed" {
		t.Fatalf("row = %+v", row)
	}
	if row.Response != "the findings" || row.TokensUsed != 50 {
		t.Fatalf("row = %+v", row)
	}
	if row.DurationMS != 800 {
		t.Fatalf("DurationMS = %d", row.DurationMS)
	}
}

func TestRecordFailure(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	req := &ai.Request{ID: "req-2", Module: ai.ModuleCoding, Message: "write code"}
	env := &ai.Envelope{
		ID:       "req-2",
		Type:     ai.EnvelopeTypeError,
		Provider: ai.ProviderClaude,
		Error:    "claude API key not configured",
	}
	if err := store.Record(ctx, req, env, nil); err != nil {
		t.Fatal(err)
	}

	rows, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Status != "failed" {
		t.Fatalf("Status = %q", rows[0].Status)
	}
	if rows[0].ErrorMsg != "claude API key not configured" {
		t.Fatalf("ErrorMsg = %q", rows[0].ErrorMsg)
	}
	if rows[0].Response != "" {
		t.Fatal("failed conversations must not store a response")
	}
}

func TestListScopedToUser(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	alice, bob := uint(1), uint(2)
	for i, user := range []*uint{&alice, &alice, &bob} {
		req := &ai.Request{ID: "req-" + string(rune('a'+i)), Module: ai.ModuleResearch, Message: "m"}
		env := &ai.Envelope{Type: "research", Provider: ai.ProviderOpenAI, Payload: "p"}
		if err := store.Record(ctx, req, env, user); err != nil {
			t.Fatal(err)
		}
	}

	rows, total, err := store.List(ctx, &alice, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("total = %d, len = %d", total, len(rows))
	}

	_, allTotal, err := store.List(ctx, nil, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if allTotal != 3 {
		t.Fatalf("allTotal = %d", allTotal)
	}
}

func TestRecentContextOrderedOldestFirst(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	first := &ai.Request{ID: "req-old", Module: ai.ModuleResearch, Message: "first question"}
	if err := store.Record(ctx, first, &ai.Envelope{Type: "research", Provider: ai.ProviderOpenAI, Payload: "first answer"}, nil); err != nil {
		t.Fatal(err)
	}
	// Ensure distinct created_at values for a stable order.
	time.Sleep(5 * time.Millisecond)
	second := &ai.Request{ID: "req-new", Module: ai.ModuleCoding, Message: "second question"}
	if err := store.Record(ctx, second, &ai.Envelope{Type: "coding", Provider: ai.ProviderOllama, Payload: "second answer"}, nil); err != nil {
		t.Fatal(err)
	}

	text, err := store.RecentContext(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}

	firstIdx := strings.Index(text, "first question")
	secondIdx := strings.Index(text, "second question")
	if firstIdx < 0 || secondIdx < 0 {
		t.Fatalf("context missing entries: %q", text)
	}
	if firstIdx > secondIdx {
		t.Fatal("context must read oldest first")
	}
	if !strings.Contains(text, "-> first answer") {
		t.Fatalf("responses should be included: %q", text)
	}
}

func TestMemories(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	if err := store.StoreMemory(ctx, "preference", "user prefers metric units", 0.9, "units"); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreMemory(ctx, "preference", "user is in UTC+2", 0.5, "timezone"); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreMemory(ctx, "fact", "project deadline is October", 0.8, ""); err != nil {
		t.Fatal(err)
	}

	byCategory, err := store.SearchMemories(ctx, "preference", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(byCategory) != 2 {
		t.Fatalf("len = %d", len(byCategory))
	}
	if byCategory[0].Importance < byCategory[1].Importance {
		t.Fatal("memories must be ordered by importance")
	}

	byContent, err := store.SearchMemories(ctx, "", "deadline", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(byContent) != 1 || byContent[0].Category != "fact" {
		t.Fatalf("byContent = %+v", byContent)
	}
}
