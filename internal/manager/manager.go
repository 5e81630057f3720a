// internal/manager/manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantplane/pkg/audit"
	"tenantplane/pkg/credentials"
	"tenantplane/pkg/tenants"
	"tenantplane/pkg/upstream"
)

// Manager orchestrates tenant lifecycle transitions and operation
// dispatch. It composes the credential provider, throttle-aware client
// and audit recorder per tenant and is the only component that mutates
// tenant status. Dispatches for different tenants (and for the same
// tenant) run concurrently; only registry mutation and credential cache
// writes are serialized, per key.
type Manager struct {
	log    *zap.SugaredLogger
	reg    tenants.Registry
	creds  *credentials.Provider
	client *upstream.Client
	rec    *audit.Recorder
	ops    *Table
	policy string
}

type Options struct {
	// PolicyModule overrides the built-in onboarding rego policy.
	PolicyModule string
}

func New(log *zap.SugaredLogger, reg tenants.Registry, creds *credentials.Provider, client *upstream.Client, rec *audit.Recorder, ops *Table, opts Options) *Manager {
	return &Manager{
		log:    log,
		reg:    reg,
		creds:  creds,
		client: client,
		rec:    rec,
		ops:    ops,
		policy: opts.PolicyModule,
	}
}

// Onboard validates the record's required permissions against what its
// mechanism actually grants, then activates it. On validation failure
// no record persists. Re-onboarding an active tenant with the same
// permissions is a no-op; a superset re-validates and upgrades; the
// required set is never silently downgraded.
func (m *Manager) Onboard(ctx context.Context, rec tenants.Record) error {
	if !rec.Valid() {
		return &OnboardingError{Kind: KindInvalidRecord, TenantID: rec.ID, Err: fmt.Errorf("record is incomplete")}
	}

	existing, err := m.reg.Get(ctx, rec.ID)
	switch {
	case err == nil:
		return m.reonboard(ctx, existing, rec)
	case errors.Is(err, tenants.ErrNotFound):
		// fall through to fresh onboarding
	default:
		return &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
	}

	// Claim the id first: of N concurrent onboards exactly one wins the
	// Create and the rest observe a conflict.
	rec.Status = tenants.StatusPending
	if err := m.reg.Create(ctx, rec); err != nil {
		if errors.Is(err, tenants.ErrConflict) {
			return &OnboardingError{Kind: KindConflict, TenantID: rec.ID, Err: err}
		}
		return &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
	}

	granted, oerr := m.validate(ctx, rec)
	if oerr != nil {
		// No partial record may persist after a failed validation.
		_ = m.reg.Remove(ctx, rec.ID)
		m.event(rec.ID, "", audit.TypeOnboarding, map[string]any{
			"outcome": "failed", "kind": string(oerr.Kind), "missing": oerr.Missing,
		})
		return oerr
	}

	rec.Status = tenants.StatusActive
	if err := m.reg.Update(ctx, rec); err != nil {
		_ = m.reg.Remove(ctx, rec.ID)
		return &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
	}
	m.event(rec.ID, "", audit.TypeOnboarding, map[string]any{
		"outcome": "ok", "display_name": rec.DisplayName, "mechanism": string(rec.Mechanism), "granted": granted,
	})
	m.log.Infow("tenant onboarded", "tenant", rec.ID, "mechanism", rec.Mechanism)
	return nil
}

// reonboard handles Onboard against an id that already has a record.
func (m *Manager) reonboard(ctx context.Context, existing, rec tenants.Record) error {
	switch existing.Status {
	case tenants.StatusActive:
		// Permissions only ever grow: merge, and only the grown set
		// forces re-validation.
		merged := unionSorted(existing.RequiredPermissions, rec.RequiredPermissions)
		if sameSet(merged, existing.RequiredPermissions) {
			m.event(rec.ID, "", audit.TypeOnboarding, map[string]any{"outcome": "noop"})
			return nil
		}
		upgraded := existing
		upgraded.RequiredPermissions = merged
		granted, oerr := m.validate(ctx, upgraded)
		if oerr != nil {
			return oerr
		}
		if err := m.reg.Update(ctx, upgraded); err != nil {
			return &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
		}
		m.event(rec.ID, "", audit.TypeOnboarding, map[string]any{"outcome": "upgraded", "granted": granted, "required": merged})
		return nil
	default:
		return &OnboardingError{Kind: KindConflict, TenantID: rec.ID,
			Err: fmt.Errorf("tenant is %s", existing.Status)}
	}
}

// validate performs the synchronous permission check: acquire a scoped
// credential and evaluate the onboarding policy on the granted scopes.
func (m *Manager) validate(ctx context.Context, rec tenants.Record) ([]string, *OnboardingError) {
	correlationID := uuid.NewString()
	cred, err := m.creds.Acquire(ctx, rec, correlationID)
	if err != nil {
		// Whatever kind of acquisition failure: the permission check
		// never ran, so the validation was unreachable.
		return nil, &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
	}
	allowed, missing, err := evalPermissions(ctx, m.policy, rec.RequiredPermissions, cred.Scopes)
	if err != nil {
		return nil, &OnboardingError{Kind: KindValidationUnreachable, TenantID: rec.ID, Err: err}
	}
	if !allowed {
		return nil, &OnboardingError{Kind: KindMissingPermissions, TenantID: rec.ID, Missing: missing,
			Err: fmt.Errorf("mechanism grants do not cover required permissions")}
	}
	return cred.Scopes, nil
}

// Offboard is terminal: the cached credential is dropped immediately so
// no dispatch started afterwards can ride a stale token. In-flight
// dispatches already executing their upstream call finish on their own
// terms; one still acquiring a credential is refused before the call.
func (m *Manager) Offboard(ctx context.Context, tenantID string) error {
	rec, err := m.reg.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	switch rec.Status {
	case tenants.StatusOffboarded:
		return nil
	case tenants.StatusActive, tenants.StatusSuspended:
		rec.Status = tenants.StatusOffboarded
		if err := m.reg.Update(ctx, rec); err != nil {
			return err
		}
		m.creds.Invalidate(tenantID)
		m.event(tenantID, "", audit.TypeOffboarding, map[string]any{"outcome": "ok"})
		m.log.Infow("tenant offboarded", "tenant", tenantID)
		return nil
	default:
		return &OnboardingError{Kind: KindConflict, TenantID: tenantID,
			Err: fmt.Errorf("cannot offboard tenant in state %s", rec.Status)}
	}
}

// Suspend pauses dispatches without discarding the tenant.
func (m *Manager) Suspend(ctx context.Context, tenantID string) error {
	return m.transition(ctx, tenantID, tenants.StatusActive, tenants.StatusSuspended)
}

// Resume re-activates a suspended tenant.
func (m *Manager) Resume(ctx context.Context, tenantID string) error {
	return m.transition(ctx, tenantID, tenants.StatusSuspended, tenants.StatusActive)
}

func (m *Manager) transition(ctx context.Context, tenantID string, from, to tenants.Status) error {
	rec, err := m.reg.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if rec.Status != from {
		return &OnboardingError{Kind: KindConflict, TenantID: tenantID,
			Err: fmt.Errorf("tenant is %s, expected %s", rec.Status, from)}
	}
	rec.Status = to
	return m.reg.Update(ctx, rec)
}

// Dispatch runs one named operation for the tenant. Every failure is
// normalized into the Result; raw transport errors never reach the
// caller. The correlation id on the Result ties together every audit
// event the dispatch produced.
func (m *Manager) Dispatch(ctx context.Context, tenantID, operation string, params map[string]any) Result {
	correlationID := uuid.NewString()
	res := Result{CorrelationID: correlationID, TenantID: tenantID, Operation: operation}

	rec, err := m.reg.Get(ctx, tenantID)
	if err != nil || rec.Status != tenants.StatusActive {
		detail := "tenant is not registered"
		if err == nil {
			detail = fmt.Sprintf("tenant is %s", rec.Status)
		}
		return m.fail(res, "not_active", detail)
	}

	op, ok := m.ops.Get(operation)
	if !ok {
		return m.fail(res, "unknown_operation", fmt.Sprintf("operation %q is not registered", operation))
	}
	if missing := op.missingParams(params); len(missing) > 0 {
		return m.fail(res, "invalid_params", fmt.Sprintf("missing parameters %v", missing))
	}

	cred, err := m.creds.Acquire(ctx, rec, correlationID)
	if err != nil {
		kind := "auth_error"
		if ae, ok := credentials.AsAuthError(err); ok {
			kind = "auth_" + string(ae.Kind)
		}
		return m.fail(res, kind, err.Error())
	}

	// Offboarding may land while the exchange above is in flight. A token
	// minted across that window is dropped, not used.
	if cur, err := m.reg.Get(ctx, tenantID); err != nil || cur.Status != tenants.StatusActive {
		m.creds.Invalidate(tenantID)
		detail := "tenant is not registered"
		if err == nil {
			detail = fmt.Sprintf("tenant is %s", cur.Status)
		}
		return m.fail(res, "not_active", detail)
	}

	resp, err := op.Handler(ctx, &OpContext{
		Tenant:        rec,
		Credential:    cred,
		Client:        m.client,
		CorrelationID: correlationID,
		Params:        params,
	})
	if err != nil {
		if ce, ok := upstream.AsCallError(err); ok {
			res.Attempts = ce.Attempts
			res.Status = StatusFailed
			if ce.Attempts > 1 {
				res.Status = StatusRetriedThenFailed
			}
			res.ErrorKind = "call_" + string(ce.Kind)
			res.ErrorDetail = ce.Error()
			m.errEvent(res)
			return res
		}
		return m.fail(res, "operation_error", err.Error())
	}

	res.Attempts = resp.Attempts
	res.Payload = resp.Payload
	res.Status = StatusSuccess
	if resp.Retried {
		res.Status = StatusRetriedThenSuccess
	}
	return res
}

func (m *Manager) fail(res Result, kind, detail string) Result {
	res.Status = StatusFailed
	res.ErrorKind = kind
	res.ErrorDetail = detail
	m.errEvent(res)
	return res
}

func (m *Manager) errEvent(res Result) {
	m.event(res.TenantID, res.CorrelationID, audit.TypeError, map[string]any{
		"operation": res.Operation,
		"kind":      res.ErrorKind,
		"detail":    res.ErrorDetail,
		"attempts":  res.Attempts,
	})
}

func (m *Manager) event(tenantID, correlationID string, typ audit.Type, detail map[string]any) {
	if m.rec == nil {
		return
	}
	m.rec.Record(audit.Event{TenantID: tenantID, CorrelationID: correlationID, Type: typ, Detail: detail})
}

func unionSorted(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]struct{}{}
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
