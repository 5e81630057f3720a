// pkg/audit/postgres.go
package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes events to the audit_events table (see
// tenants.EnsureSchema). Append-only; nothing here mutates rows.
type PostgresSink struct {
	dbPool *pgxpool.Pool
}

func NewPostgresSink(dbPool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{dbPool: dbPool}
}

func (s *PostgresSink) Emit(ctx context.Context, e Event) error {
	detail, _ := json.Marshal(e.Detail)
	_, err := s.dbPool.Exec(ctx,
		`INSERT INTO audit_events(ts, tenant_id, correlation_id, event_type, detail) VALUES ($1,$2,$3,$4,$5)`,
		e.Time, e.TenantID, e.CorrelationID, string(e.Type), detail)
	return err
}
