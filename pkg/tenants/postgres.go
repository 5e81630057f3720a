// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgRegistry implements Registry backed by PostgreSQL.
type pgRegistry struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresRegistry constructs a PostgreSQL-backed tenant registry.
func NewPostgresRegistry(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Registry {
	return &pgRegistry{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id text PRIMARY KEY,
  display_name text,
  mechanism text NOT NULL,
  client_id text,
  auth_ref jsonb NOT NULL DEFAULT '{}'::jsonb,
  authority_url text,
  base_url text NOT NULL,
  scopes text[] DEFAULT '{}',
  required_permissions text[] DEFAULT '{}',
  status text NOT NULL DEFAULT 'pending',
  seq BIGSERIAL,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS audit_events (
  id BIGSERIAL PRIMARY KEY,
  ts timestamptz NOT NULL,
  tenant_id text NOT NULL,
  correlation_id text,
  event_type text NOT NULL,
  detail jsonb NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS audit_events_tenant_ts_idx ON audit_events(tenant_id, ts);
`)
	return err
}

const tenantCols = `id, COALESCE(display_name,''), mechanism, COALESCE(client_id,''), auth_ref, COALESCE(authority_url,''), base_url, scopes, required_permissions, status`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var mech, status string
	var refJSON []byte
	if err := row.Scan(&rec.ID, &rec.DisplayName, &mech, &rec.ClientID, &refJSON, &rec.AuthorityURL, &rec.BaseURL, &rec.Scopes, &rec.RequiredPermissions, &status); err != nil {
		return Record{}, err
	}
	rec.Mechanism = Mechanism(mech)
	rec.Status = Status(status)
	if len(refJSON) > 0 {
		_ = json.Unmarshal(refJSON, &rec.AuthRef)
	}
	return rec, nil
}

func (p *pgRegistry) Get(ctx context.Context, id string) (Record, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (p *pgRegistry) Create(ctx context.Context, rec Record) error {
	refJSON, _ := json.Marshal(rec.AuthRef)
	_, err := p.dbPool.Exec(ctx, `INSERT INTO tenants(id, display_name, mechanism, client_id, auth_ref, authority_url, base_url, scopes, required_permissions, status)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.DisplayName, string(rec.Mechanism), rec.ClientID, refJSON, rec.AuthorityURL, rec.BaseURL, rec.Scopes, rec.RequiredPermissions, string(rec.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrConflict
		}
		return err
	}
	return nil
}

func (p *pgRegistry) Update(ctx context.Context, rec Record) error {
	refJSON, _ := json.Marshal(rec.AuthRef)
	tag, err := p.dbPool.Exec(ctx, `UPDATE tenants SET display_name=$2, mechanism=$3, client_id=$4, auth_ref=$5, authority_url=$6, base_url=$7, scopes=$8, required_permissions=$9, status=$10, updated_at=NOW()
	  WHERE id=$1`,
		rec.ID, rec.DisplayName, string(rec.Mechanism), rec.ClientID, refJSON, rec.AuthorityURL, rec.BaseURL, rec.Scopes, rec.RequiredPermissions, string(rec.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgRegistry) Remove(ctx context.Context, id string) error {
	tag, err := p.dbPool.Exec(ctx, `DELETE FROM tenants WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgRegistry) List(ctx context.Context) ([]Record, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
