// cmd/control-plane/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenantplane/internal/adminapi"
	"tenantplane/internal/manager"
	"tenantplane/internal/operations"
	"tenantplane/pkg/audit"
	"tenantplane/pkg/config"
	"tenantplane/pkg/credentials"
	"tenantplane/pkg/db"
	"tenantplane/pkg/logger"
	"tenantplane/pkg/tenants"
	"tenantplane/pkg/upstream"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "control-plane")

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	// Audit: in-memory store always (serves the pull API), plus
	// whatever durable channels are configured.
	store := audit.NewMemoryStore(cfg.AuditRetention)
	sinks := []audit.Sink{store}
	if rdb != nil {
		sinks = append(sinks, audit.NewRedisSink(rdb))
	}
	if pool != nil {
		sinks = append(sinks, audit.NewPostgresSink(pool))
	}
	rec := audit.NewRecorder(log, cfg.AuditBuffer, sinks...)
	defer rec.Close()

	var reg tenants.Registry
	if pool != nil {
		if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		reg = tenants.NewPostgresRegistry(pool, log)
	} else {
		reg = tenants.NewMemoryRegistry()
	}

	creds := credentials.NewProvider(log, rec, credentials.Options{
		SafetyMargin:    cfg.TokenSafetyMargin,
		ExchangeTimeout: cfg.ExchangeTimeout,
		ManagedEndpoint: cfg.ManagedIDEndpoint,
	})
	client := upstream.NewClient(log, rec, upstream.ClientOptions{
		Policy: upstream.Policy{
			Base:        cfg.BackoffBase,
			Cap:         cfg.BackoffCap,
			MaxAttempts: cfg.MaxAttempts,
		},
		AttemptTimeout: cfg.CallTimeout,
	})

	table := manager.NewTable()
	operations.Register(table)

	mgr := manager.New(log, reg, creds, client, rec, table, manager.Options{})

	if cfg.TenantFile != "" {
		onboardFromFile(log, mgr, cfg.TenantFile)
	}

	app := adminapi.New(log, mgr, reg, store)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler(cfg)}
	go func() {
		log.Infow("control-plane listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("control-plane stopped")
}

// onboardFromFile runs the startup onboarding pass. A tenant that fails
// validation is logged and skipped; an already-active tenant is a no-op.
func onboardFromFile(log logger.Sugared, mgr *manager.Manager, path string) {
	recs, err := tenants.LoadFile(path)
	if err != nil {
		log.Fatalw("tenant file", "path", path, "err", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for _, rec := range recs {
		if err := mgr.Onboard(ctx, rec); err != nil {
			var oe *manager.OnboardingError
			if errors.As(err, &oe) && oe.Kind == manager.KindConflict {
				continue
			}
			log.Warnw("tenant onboarding failed", "tenant", rec.ID, "err", err)
			continue
		}
		log.Infow("tenant onboarded from file", "tenant", rec.ID)
	}
}
