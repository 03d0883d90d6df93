package ai

import (
	"math"
	"testing"
	"time"
)

func TestUsageTrackerAccumulates(t *testing.T) {
	t.Parallel()

	tr := newUsageTracker(ProviderOpenAI)
	tr.record(100, 0.01, 2*time.Second)
	tr.record(50, 0.005, 4*time.Second)
	tr.recordError()

	u := tr.snapshot()
	if u.RequestCount != 2 {
		t.Fatalf("RequestCount = %d", u.RequestCount)
	}
	if u.TotalTokens != 150 {
		t.Fatalf("TotalTokens = %d", u.TotalTokens)
	}
	if math.Abs(u.TotalCost-0.015) > 1e-9 {
		t.Fatalf("TotalCost = %f", u.TotalCost)
	}
	if math.Abs(u.AvgLatency-3.0) > 1e-9 {
		t.Fatalf("AvgLatency = %f", u.AvgLatency)
	}
	if u.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d", u.ErrorCount)
	}
}

func TestUsageSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	tr := newUsageTracker(ProviderClaude)
	first := tr.snapshot()
	tr.record(10, 0.001, time.Second)

	if first.RequestCount != 0 {
		t.Fatal("snapshot must not observe later writes")
	}
}
