package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"tenantplane/pkg/audit"
	"tenantplane/pkg/secrets"
	"tenantplane/pkg/tenants"
)

func secretRecord(id, authority string) tenants.Record {
	return tenants.Record{
		ID:           id,
		DisplayName:  id,
		Mechanism:    tenants.MechanismSharedSecret,
		ClientID:     "client-" + id,
		AuthRef:      secrets.Ref{Value: "s3cr3t-" + id},
		AuthorityURL: authority,
		BaseURL:      "https://api.example.com",
		Scopes:       []string{"default"},
		Status:       tenants.StatusActive,
	}
}

// tokenServer answers client_credentials grants with a per-tenant token
// and counts exchanges per client id.
func tokenServer(t *testing.T, ttl int) (*httptest.Server, *sync.Map) {
	t.Helper()
	var counts sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		client := r.PostFormValue("client_id")
		n, _ := counts.LoadOrStore(client, new(int32))
		atomic.AddInt32(n.(*int32), 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%s","expires_in":%d}`, client, ttl)
	}))
	return srv, &counts
}

func exchangeCount(counts *sync.Map, client string) int32 {
	n, ok := counts.Load(client)
	if !ok {
		return 0
	}
	return atomic.LoadInt32(n.(*int32))
}

func TestAcquire_CachesWhileFresh(t *testing.T) {
	srv, counts := tokenServer(t, 3600)
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{SafetyMargin: time.Minute})
	rec := secretRecord("t1", srv.URL)

	first, err := p.Acquire(context.Background(), rec, "corr-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := p.Acquire(context.Background(), rec, "corr-2")
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if first.Token != second.Token {
		t.Error("fresh credential should be served from cache")
	}
	if n := exchangeCount(counts, "client-t1"); n != 1 {
		t.Errorf("exchanges: got %d, want 1", n)
	}
}

func TestAcquire_RefreshesInsideSafetyMargin(t *testing.T) {
	// Tokens expire in 30s, and the margin demands 2m of headroom, so
	// every acquisition must exchange anew.
	srv, counts := tokenServer(t, 30)
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{SafetyMargin: 2 * time.Minute})
	rec := secretRecord("t1", srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := p.Acquire(context.Background(), rec, "corr"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if n := exchangeCount(counts, "client-t1"); n != 3 {
		t.Errorf("exchanges: got %d, want 3", n)
	}
}

func TestAcquire_TokensNeverCrossTenants(t *testing.T) {
	srv, _ := tokenServer(t, 3600)
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
	const n = 8
	creds := make([]Credential, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := secretRecord(fmt.Sprintf("t%d", i), srv.URL)
			c, err := p.Acquire(context.Background(), rec, "corr")
			if err != nil {
				t.Errorf("acquire t%d: %v", i, err)
				return
			}
			creds[i] = c
		}(i)
	}
	wg.Wait()

	seen := map[string]string{}
	for i, c := range creds {
		want := fmt.Sprintf("t%d", i)
		if c.TenantID != want {
			t.Errorf("credential %d bound to %q", i, c.TenantID)
		}
		if prev, dup := seen[c.Token]; dup {
			t.Errorf("token shared between %s and %s", prev, c.TenantID)
		}
		seen[c.Token] = c.TenantID
	}
}

func TestAcquire_ConcurrentStaleCacheExchangesOnce(t *testing.T) {
	srv, counts := tokenServer(t, 3600)
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
	rec := secretRecord("t1", srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Acquire(context.Background(), rec, "corr"); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := exchangeCount(counts, "client-t1"); n != 1 {
		t.Errorf("stale-cache race should collapse to one exchange, got %d", n)
	}
}

func TestAcquire_InvalidateForcesReExchange(t *testing.T) {
	srv, counts := tokenServer(t, 3600)
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
	rec := secretRecord("t1", srv.URL)
	if _, err := p.Acquire(context.Background(), rec, "corr"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Invalidate("t1")
	if _, err := p.Acquire(context.Background(), rec, "corr"); err != nil {
		t.Fatalf("acquire after invalidate: %v", err)
	}
	if n := exchangeCount(counts, "client-t1"); n != 2 {
		t.Errorf("exchanges: got %d, want 2", n)
	}
}

func TestAcquire_ErrorKinds(t *testing.T) {
	t.Run("ExpiredReference", func(t *testing.T) {
		p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
		rec := secretRecord("t1", "https://login.example.com")
		rec.AuthRef = secrets.Ref{Env: "PROVIDER_TEST_UNSET_SECRET"}
		_, err := p.Acquire(context.Background(), rec, "corr")
		ae, ok := AsAuthError(err)
		if !ok || ae.Kind != KindExpiredReference {
			t.Fatalf("expected expired_reference, got %v", err)
		}
	})

	t.Run("ExchangeRejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()
		p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
		_, err := p.Acquire(context.Background(), secretRecord("t1", srv.URL), "corr")
		ae, ok := AsAuthError(err)
		if !ok || ae.Kind != KindExchangeRejected {
			t.Fatalf("expected exchange_rejected, got %v", err)
		}
	})

	t.Run("NetworkUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		p := NewProvider(zap.NewNop().Sugar(), nil, Options{})
		_, err := p.Acquire(context.Background(), secretRecord("t1", srv.URL), "corr")
		ae, ok := AsAuthError(err)
		if !ok || ae.Kind != KindNetworkUnavailable {
			t.Fatalf("expected network_unavailable, got %v", err)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		p := NewProvider(zap.NewNop().Sugar(), nil, Options{ExchangeTimeout: time.Second})
		_, err := p.Acquire(context.Background(), secretRecord("t1", "http://127.0.0.1:1"), "corr")
		ae, ok := AsAuthError(err)
		if !ok || ae.Kind != KindNetworkUnavailable {
			t.Fatalf("expected network_unavailable, got %v", err)
		}
	})
}

func TestAcquire_AuditCarriesFingerprintNotToken(t *testing.T) {
	srv, _ := tokenServer(t, 3600)
	defer srv.Close()

	store := audit.NewMemoryStore(10)
	auditRec := audit.NewRecorder(zap.NewNop().Sugar(), 8, store)
	p := NewProvider(zap.NewNop().Sugar(), auditRec, Options{})

	cred, err := p.Acquire(context.Background(), secretRecord("t1", srv.URL), "corr-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	auditRec.Close()

	events := store.Recent("t1", 10)
	if len(events) != 1 || events[0].Type != audit.TypeAuth {
		t.Fatalf("expected one auth event, got %v", events)
	}
	detail := fmt.Sprintf("%v", events[0].Detail)
	if strings.Contains(detail, cred.Token) {
		t.Fatal("raw token leaked into audit detail")
	}
	if events[0].Detail["fingerprint"] != cred.Fingerprint() {
		t.Error("auth event should carry the token fingerprint")
	}
	if events[0].CorrelationID != "corr-1" {
		t.Errorf("correlation id: %q", events[0].CorrelationID)
	}
}

func TestManagedIdentityExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method: %s", r.Method)
		}
		if r.Header.Get("Metadata") != "true" {
			t.Error("missing Metadata header")
		}
		if got := r.URL.Query().Get("resource"); got != "https://api.example.com" {
			t.Errorf("resource: %q", got)
		}
		fmt.Fprint(w, `{"access_token":"mi-token","expires_in":"86400"}`)
	}))
	defer srv.Close()

	p := NewProvider(zap.NewNop().Sugar(), nil, Options{ManagedEndpoint: srv.URL})
	rec := tenants.Record{
		ID:        "mi",
		Mechanism: tenants.MechanismManagedIdentity,
		BaseURL:   "https://api.example.com",
		Status:    tenants.StatusActive,
	}
	cred, err := p.Acquire(context.Background(), rec, "corr")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if cred.Token != "mi-token" {
		t.Errorf("token: %q", cred.Token)
	}
	if !cred.Fresh(time.Now().Add(23*time.Hour), time.Minute) {
		t.Error("expiry should honor the string-typed expires_in")
	}
}

func TestCredentialFreshness(t *testing.T) {
	now := time.Now()
	c := Credential{Token: "x", ExpiresAt: now.Add(10 * time.Minute)}
	if !c.Fresh(now, 2*time.Minute) {
		t.Error("well inside expiry should be fresh")
	}
	if c.Fresh(now.Add(9*time.Minute), 2*time.Minute) {
		t.Error("inside the safety margin should be stale")
	}
	if (Credential{ExpiresAt: now.Add(time.Hour)}).Fresh(now, 0) {
		t.Error("empty token can never be fresh")
	}
}
