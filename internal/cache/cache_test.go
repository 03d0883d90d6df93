package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nexusai/internal/metrics"
)

func TestMemoryModeSetGet(t *testing.T) {
	t.Parallel()

	c := New("", nil)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}

	c.Set(ctx, "greeting", []byte("hello"), time.Minute)
	got, ok := c.Get(ctx, "greeting")
	if !ok || string(got) != "hello" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	c.Delete(ctx, "greeting")
	if _, ok := c.Get(ctx, "greeting"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestMemoryModeTTL(t *testing.T) {
	t.Parallel()

	c := New("", nil)
	ctx := context.Background()

	c.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(ctx, "ephemeral"); ok {
		t.Fatal("expired entry must not be returned")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	c := New("", nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "nope")

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("Stats = %d hits, %d misses", hits, misses)
	}
}

// Not parallel: it reads deltas from the process-wide prometheus counters.
func TestPrometheusCountersTrackHitsAndMisses(t *testing.T) {
	m := metrics.Get()
	baseHits := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory"))
	baseMisses := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("memory"))

	c := New("", nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "nope")

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory")) - baseHits; got != 1 {
		t.Fatalf("hit counter delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("memory")) - baseMisses; got != 1 {
		t.Fatalf("miss counter delta = %v, want 1", got)
	}
}

func TestInvalidRedisURLFallsBack(t *testing.T) {
	t.Parallel()

	c := New("not-a-url", nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if got, ok := c.Get(ctx, "k"); !ok || string(got) != "v" {
		t.Fatal("memory fallback should still serve reads")
	}
}
