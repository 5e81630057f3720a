// pkg/audit/audit.go
package audit

import (
	"context"
	"time"
)

// Type classifies an audit event.
type Type string

const (
	TypeAuth        Type = "auth"
	TypeCall        Type = "call"
	TypeRetry       Type = "retry"
	TypeThrottle    Type = "throttle"
	TypeOnboarding  Type = "onboarding"
	TypeOffboarding Type = "offboarding"
	TypeError       Type = "error"
)

// Event is an immutable record of an action taken or attempted. Detail
// holds redacted structured fields only, never tokens or secrets.
type Event struct {
	Time          time.Time      `json:"ts"`
	TenantID      string         `json:"tenant_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Type          Type           `json:"event_type"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// Sink receives events. Implementations may be slow or fail; the
// recorder isolates callers from both.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}
