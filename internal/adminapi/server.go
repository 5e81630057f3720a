// internal/adminapi/server.go
package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantplane/pkg/config"
	"tenantplane/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler(cfg config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.Tracing(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/admin", func(ar chi.Router) {
		ar.Get("/tenants", a.listTenants)
		ar.Post("/tenants", a.onboardTenant)
		ar.Get("/tenants/{id}", a.getTenant)
		ar.Delete("/tenants/{id}", a.offboardTenant)
		ar.Post("/tenants/{id}/suspend", a.suspendTenant)
		ar.Post("/tenants/{id}/resume", a.resumeTenant)
		ar.Post("/tenants/{id}/dispatch", a.dispatchOperation)
		ar.Get("/audit", a.recentAudit)
		ar.Get("/audit/dump", a.dumpAudit)
	})

	return r
}
