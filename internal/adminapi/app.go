// internal/adminapi/app.go
package adminapi

import (
	"go.uber.org/zap"

	"tenantplane/internal/manager"
	"tenantplane/pkg/audit"
	"tenantplane/pkg/tenants"
)

// App is the admin HTTP surface the CLI and GUI front ends consume.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps only. Request-scoped work uses context.
type App struct {
	log   *zap.SugaredLogger
	mgr   *manager.Manager
	reg   tenants.Registry
	store *audit.MemoryStore
}

func New(log *zap.SugaredLogger, mgr *manager.Manager, reg tenants.Registry, store *audit.MemoryStore) *App {
	return &App{log: log, mgr: mgr, reg: reg, store: store}
}
