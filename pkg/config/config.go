// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Tenant bootstrap file (YAML). Optional; tenants can also be
	// onboarded through the admin API at runtime.
	TenantFile string

	// Credential exchange
	TokenSafetyMargin time.Duration // refresh this long before expiry
	ExchangeTimeout   time.Duration

	// Upstream call policy
	CallTimeout       time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	ManagedIDEndpoint string // metadata endpoint for managed-identity exchange

	// Audit
	AuditBuffer    int
	AuditRetention int // events kept per memory store

	// Redis & Postgres (optional; memory fallbacks when unset)
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:               env("PLANE_ENV", "dev"),
		HTTPAddr:          env("PLANE_HTTP_ADDR", ":8080"),
		TenantFile:        env("PLANE_TENANT_FILE", ""),
		TokenSafetyMargin: envDur("TOKEN_SAFETY_MARGIN_SEC", 120) * time.Second,
		ExchangeTimeout:   envDur("EXCHANGE_TIMEOUT_SEC", 15) * time.Second,
		CallTimeout:       envDur("CALL_TIMEOUT_SEC", 30) * time.Second,
		MaxAttempts:       envInt("CALL_MAX_ATTEMPTS", 5),
		BackoffBase:       envDur("BACKOFF_BASE_MS", 500) * time.Millisecond,
		BackoffCap:        envDur("BACKOFF_CAP_SEC", 30) * time.Second,
		ManagedIDEndpoint: env("MANAGED_IDENTITY_ENDPOINT", "http://169.254.169.254/metadata/identity/oauth2/token"),
		AuditBuffer:       envInt("AUDIT_BUFFER", 1024),
		AuditRetention:    envInt("AUDIT_RETENTION", 1000),
		RedisURL:          env("REDIS_URL", ""),
		DatabaseURL:       env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory tenant registry")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
