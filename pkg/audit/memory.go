// pkg/audit/memory.go
package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a bounded in-memory sink that also serves the pull
// interface the front ends consume (most recent N, full dump by tenant
// and time range).
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event // oldest first
	max    int
}

// NewMemoryStore keeps at most max events, evicting the oldest.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// Recent returns up to n most recent events, newest first. Empty
// tenantID matches all tenants.
func (s *MemoryStore) Recent(tenantID string, n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		e := s.events[i]
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Dump returns all held events for the tenant within [from, to], oldest
// first. Zero bounds are open.
func (s *MemoryStore) Dump(tenantID string, from, to time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.Time.Before(from) {
			continue
		}
		if !to.IsZero() && e.Time.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}
