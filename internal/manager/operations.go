// internal/manager/operations.go
package manager

import (
	"context"
	"fmt"
	"sync"

	"tenantplane/pkg/credentials"
	"tenantplane/pkg/tenants"
	"tenantplane/pkg/upstream"
)

// OpContext is everything a handler may touch for one dispatch. The
// credential and client are scoped to exactly this tenant and call.
type OpContext struct {
	Tenant        tenants.Record
	Credential    credentials.Credential
	Client        *upstream.Client
	CorrelationID string
	Params        map[string]any
}

// Handler executes one named operation against the tenant's API
// surface and returns the upstream response (possibly projected).
type Handler func(ctx context.Context, oc *OpContext) (*upstream.Response, error)

// Operation couples a handler with the parameter names it requires.
// Requirements are checked before any credential work happens.
type Operation struct {
	Name     string
	Required []string
	Handler  Handler
}

// Table maps operation names to typed handlers. Registration is
// validated up front so a mismatch surfaces at startup, not at call
// time.
type Table struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewTable() *Table {
	return &Table{ops: map[string]Operation{}}
}

func (t *Table) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Handler == nil {
		return fmt.Errorf("operation %q has no handler", op.Name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ops[op.Name]; ok {
		return fmt.Errorf("operation %q already registered", op.Name)
	}
	t.ops[op.Name] = op
	return nil
}

// MustRegister is for static registration at startup.
func (t *Table) MustRegister(op Operation) {
	if err := t.Register(op); err != nil {
		panic(err)
	}
}

func (t *Table) Get(name string) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[name]
	return op, ok
}

func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.ops))
	for n := range t.ops {
		out = append(out, n)
	}
	return out
}

// missingParams returns required parameter names absent from params.
func (op Operation) missingParams(params map[string]any) []string {
	var missing []string
	for _, name := range op.Required {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
