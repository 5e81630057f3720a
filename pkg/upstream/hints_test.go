package upstream

import (
	"context"
	"testing"
	"time"
)

func TestHintCachePacesAfterObservation(t *testing.T) {
	h := NewHintCache()
	ctx := context.Background()

	if d := h.Pace(ctx, "t1"); d != 0 {
		t.Errorf("unknown tenant should not be paced, got %v", d)
	}

	h.Observe("t1", 50*time.Millisecond)
	// The first reservation consumes the burst token.
	h.Pace(ctx, "t1")
	start := time.Now()
	d := h.Pace(ctx, "t1")
	if d <= 0 {
		t.Fatal("second call should be paced by the observed interval")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("pace did not actually wait, elapsed %v", elapsed)
	}
}

func TestHintCacheIgnoresOversizedDelay(t *testing.T) {
	h := NewHintCache()
	ctx := context.Background()
	h.Observe("t1", time.Minute)
	h.Pace(ctx, "t1") // burst token

	start := time.Now()
	if d := h.Pace(ctx, "t1"); d != 0 {
		t.Errorf("oversized reservation should be dropped, got %v", d)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("pace blocked for %v on an oversized hint", elapsed)
	}
}

func TestHintCacheIsolatesTenants(t *testing.T) {
	h := NewHintCache()
	h.Observe("slow", 50*time.Millisecond)
	h.Pace(context.Background(), "slow")

	start := time.Now()
	if d := h.Pace(context.Background(), "fast"); d != 0 {
		t.Errorf("unrelated tenant paced by %v", d)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("unrelated tenant waited %v", elapsed)
	}
}

func TestHintCacheIgnoresNonPositiveHints(t *testing.T) {
	h := NewHintCache()
	h.Observe("t1", 0)
	h.Observe("t1", -time.Second)
	if d := h.Pace(context.Background(), "t1"); d != 0 {
		t.Errorf("non-positive hints should not create limiters, got %v", d)
	}
}
