// pkg/credentials/provider.go
package credentials

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tenantplane/pkg/audit"
	"tenantplane/pkg/tenants"
)

// Provider resolves and caches credentials per tenant. The cache is
// keyed strictly by tenant id: two records pointing at the same backend
// directory still get separate entries, so no token ever serves two
// tenants. Exchanges for different tenants proceed concurrently; the
// per-entry lock only serializes refreshes of one tenant.
type Provider struct {
	log    *zap.SugaredLogger
	rec    *audit.Recorder
	hc     *http.Client
	margin time.Duration

	managedEndpoint string

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	cred Credential
}

type Options struct {
	SafetyMargin    time.Duration
	ExchangeTimeout time.Duration
	ManagedEndpoint string
	HTTPClient      *http.Client // test hook; defaults to a plain client
}

func NewProvider(log *zap.SugaredLogger, rec *audit.Recorder, opts Options) *Provider {
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = 2 * time.Minute
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.ExchangeTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Provider{
		log:             log,
		rec:             rec,
		hc:              hc,
		margin:          opts.SafetyMargin,
		managedEndpoint: opts.ManagedEndpoint,
		entries:         map[string]*entry{},
	}
}

// Acquire returns a cached credential while it is comfortably inside
// its expiry, otherwise performs the record's exchange and replaces the
// cache entry for that tenant only. correlationID ties the resulting
// auth events to the dispatch that needed the token.
func (p *Provider) Acquire(ctx context.Context, t tenants.Record, correlationID string) (Credential, error) {
	ent := p.entry(t.ID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	// A refresh that raced us may already have replaced the entry.
	if ent.cred.Fresh(time.Now(), p.margin) {
		return ent.cred, nil
	}

	cred, err := p.exchange(ctx, t)
	if err != nil {
		p.record(t.ID, correlationID, map[string]any{
			"mechanism": string(t.Mechanism),
			"outcome":   "failed",
			"error":     err.Error(),
		})
		return Credential{}, err
	}
	ent.cred = cred
	p.record(t.ID, correlationID, map[string]any{
		"mechanism":   string(t.Mechanism),
		"outcome":     "ok",
		"fingerprint": cred.Fingerprint(),
		"expires_at":  cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return cred, nil
}

// Invalidate drops the cached credential so no dispatch started after
// offboarding can reuse a stale token.
func (p *Provider) Invalidate(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, tenantID)
}

func (p *Provider) entry(tenantID string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	ent, ok := p.entries[tenantID]
	if !ok {
		ent = &entry{}
		p.entries[tenantID] = ent
	}
	return ent
}

func (p *Provider) record(tenantID, correlationID string, detail map[string]any) {
	if p.rec == nil {
		return
	}
	p.rec.Record(audit.Event{
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Type:          audit.TypeAuth,
		Detail:        detail,
	})
}
