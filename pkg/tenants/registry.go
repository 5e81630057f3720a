// pkg/tenants/registry.go
package tenants

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound = errors.New("tenant not found")
	// ErrConflict signals that a record already exists for the id. A
	// concurrent create must not silently overwrite; exactly one caller
	// wins and the rest observe the winner's state.
	ErrConflict = errors.New("tenant already registered")
)

// Registry holds the known tenant set. List order is insertion order so
// reporting stays stable. Mutations are serialized per registry.
type Registry interface {
	Get(ctx context.Context, id string) (Record, error)
	// Create inserts a new record; ErrConflict when the id exists.
	Create(ctx context.Context, rec Record) error
	// Update replaces an existing record; ErrNotFound when absent.
	Update(ctx context.Context, rec Record) error
	// Remove deletes a record outright. Only the onboarding rollback
	// path uses it; lifecycle exits go through status transitions.
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
}

type memRegistry struct {
	mu    sync.RWMutex
	byID  map[string]Record
	order []string
}

// NewMemoryRegistry returns a process-local registry; the default when
// no DATABASE_URL is configured.
func NewMemoryRegistry() Registry {
	return &memRegistry{byID: map[string]Record{}}
}

func (m *memRegistry) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memRegistry) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[rec.ID]; ok {
		return ErrConflict
	}
	m.byID[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *memRegistry) Update(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[rec.ID]; !ok {
		return ErrNotFound
	}
	m.byID[rec.ID] = rec
	return nil
}

func (m *memRegistry) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memRegistry) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}
