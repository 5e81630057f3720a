// internal/adminapi/handlers.go
package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tenantplane/internal/manager"
	"tenantplane/pkg/problems"
	"tenantplane/pkg/tenants"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) listTenants(w http.ResponseWriter, r *http.Request) {
	recs, err := a.reg.List(r.Context())
	if err != nil {
		problems.Write(w, http.StatusInternalServerError, "registry-error", "Registry unavailable", err.Error())
		return
	}
	writeJSON(w, map[string]any{"tenants": recs}, http.StatusOK)
}

func (a *App) getTenant(w http.ResponseWriter, r *http.Request) {
	rec, err := a.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			problems.Write(w, http.StatusNotFound, "tenant-not-found", "Unknown tenant", "No tenant with that id is registered")
			return
		}
		problems.Write(w, http.StatusInternalServerError, "registry-error", "Registry unavailable", err.Error())
		return
	}
	writeJSON(w, rec, http.StatusOK)
}

func (a *App) onboardTenant(w http.ResponseWriter, r *http.Request) {
	var rec tenants.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		problems.Write(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	if err := a.mgr.Onboard(r.Context(), rec); err != nil {
		a.writeOnboardingError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tenant_id": rec.ID}, http.StatusCreated)
}

func (a *App) offboardTenant(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Offboard(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeOnboardingError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func (a *App) suspendTenant(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Suspend(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeOnboardingError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func (a *App) resumeTenant(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeOnboardingError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

type dispatchBody struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
}

func (a *App) dispatchOperation(w http.ResponseWriter, r *http.Request) {
	var b dispatchBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		problems.Write(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	if b.Operation == "" {
		problems.Write(w, http.StatusBadRequest, "missing-operation", "Missing operation", "operation is required")
		return
	}
	res := a.mgr.Dispatch(r.Context(), chi.URLParam(r, "id"), b.Operation, b.Parameters)
	status := http.StatusOK
	if res.Failed() {
		// The result itself is the contract; failures still return the
		// normalized body, just with a telling status code.
		switch res.ErrorKind {
		case "not_active":
			status = http.StatusConflict
		case "unknown_operation", "invalid_params":
			status = http.StatusBadRequest
		default:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, res, status)
}

func (a *App) recentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			limit = i
		}
	}
	events := a.store.Recent(r.URL.Query().Get("tenant"), limit)
	writeJSON(w, map[string]any{"events": events}, http.StatusOK)
}

func (a *App) dumpAudit(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		from, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, _ = time.Parse(time.RFC3339, v)
	}
	events := a.store.Dump(r.URL.Query().Get("tenant"), from, to)
	writeJSON(w, map[string]any{"events": events}, http.StatusOK)
}

func (a *App) writeOnboardingError(w http.ResponseWriter, err error) {
	var oe *manager.OnboardingError
	if errors.As(err, &oe) {
		switch oe.Kind {
		case manager.KindConflict:
			problems.Write(w, http.StatusConflict, "tenant-conflict", "Tenant conflict", oe.Error())
		case manager.KindMissingPermissions:
			problems.Write(w, http.StatusUnprocessableEntity, "missing-permissions", "Missing permissions", oe.Error())
		case manager.KindInvalidRecord:
			problems.Write(w, http.StatusBadRequest, "invalid-record", "Invalid tenant record", oe.Error())
		default:
			problems.Write(w, http.StatusBadGateway, "validation-unreachable", "Validation unreachable", oe.Error())
		}
		return
	}
	if errors.Is(err, tenants.ErrNotFound) {
		problems.Write(w, http.StatusNotFound, "tenant-not-found", "Unknown tenant", "No tenant with that id is registered")
		return
	}
	problems.Write(w, http.StatusInternalServerError, "registry-error", "Registry unavailable", err.Error())
}
