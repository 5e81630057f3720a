// pkg/upstream/hints.go
package upstream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxHintWait bounds how long advisory pacing may ever delay a call.
const maxHintWait = 5 * time.Second

// HintCache remembers the last observed rate limit per tenant so later
// calls pace themselves below it preemptively. It is advisory only:
// stale entries cause suboptimal pacing, never incorrect behavior, and
// pacing never blocks a call beyond maxHintWait.
type HintCache struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHintCache() *HintCache {
	return &HintCache{limiters: map[string]*rate.Limiter{}}
}

// Observe records a throttle hint for the tenant. retryAfter is the
// upstream-suggested delay; the derived limiter spaces subsequent calls
// at roughly that interval.
func (h *HintCache) Observe(tenantID string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	limit := rate.Every(retryAfter)
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.limiters[tenantID]; ok {
		l.SetLimit(limit)
		return
	}
	h.limiters[tenantID] = rate.NewLimiter(limit, 1)
}

// Pace waits the advisory delay for the tenant, if any, and returns the
// delay applied. A reservation longer than maxHintWait is cancelled and
// ignored rather than honored.
func (h *HintCache) Pace(ctx context.Context, tenantID string) time.Duration {
	h.mu.Lock()
	l := h.limiters[tenantID]
	h.mu.Unlock()
	if l == nil {
		return 0
	}
	res := l.Reserve()
	if !res.OK() {
		return 0
	}
	d := res.Delay()
	if d <= 0 {
		return 0
	}
	if d > maxHintWait {
		res.Cancel()
		return 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return d
	case <-ctx.Done():
		res.Cancel()
		return 0
	}
}
