// pkg/credentials/exchange.go
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"tenantplane/pkg/tenants"
)

const assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// tokenResponse is the wire shape shared by the confidential-client
// exchanges and the managed-identity metadata endpoint.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
	Scope       string      `json:"scope"`
}

func (p *Provider) exchange(ctx context.Context, t tenants.Record) (Credential, error) {
	switch t.Mechanism {
	case tenants.MechanismSharedSecret:
		return p.exchangeSecret(ctx, t)
	case tenants.MechanismCertificate:
		return p.exchangeCertificate(ctx, t)
	case tenants.MechanismManagedIdentity:
		return p.exchangeManagedIdentity(ctx, t)
	}
	return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: fmt.Errorf("unsupported mechanism %q", t.Mechanism)}
}

// exchangeSecret performs a client_credentials grant with the resolved
// shared secret.
func (p *Provider) exchangeSecret(ctx context.Context, t tenants.Record) (Credential, error) {
	secret, err := t.AuthRef.Resolve()
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExpiredReference, TenantID: t.ID, Err: err}
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {t.ClientID},
		"client_secret": {secret},
		"scope":         {strings.Join(t.Scopes, " ")},
	}
	return p.postToken(ctx, t, tokenURL(t), form)
}

// exchangeCertificate signs a short-lived client assertion with the
// tenant's private key and trades it for a token.
func (p *Provider) exchangeCertificate(ctx context.Context, t tenants.Record) (Credential, error) {
	pemBytes, err := t.AuthRef.Resolve()
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExpiredReference, TenantID: t.ID, Err: err}
	}
	key, err := jwk.ParseKey([]byte(pemBytes), jwk.WithPEM(true))
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExpiredReference, TenantID: t.ID, Err: fmt.Errorf("parse signing key: %w", err)}
	}
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(t.ClientID).
		Subject(t.ClientID).
		Audience([]string{tokenURL(t)}).
		IssuedAt(now).
		Expiration(now.Add(5 * time.Minute)).
		JwtID(uuid.NewString()).
		Build()
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: err}
	}
	assertion, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: fmt.Errorf("sign assertion: %w", err)}
	}
	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_id":             {t.ClientID},
		"client_assertion_type": {assertionType},
		"client_assertion":      {string(assertion)},
		"scope":                 {strings.Join(t.Scopes, " ")},
	}
	return p.postToken(ctx, t, tokenURL(t), form)
}

// exchangeManagedIdentity asks the platform metadata endpoint for a
// token; the platform holds the credential material itself.
func (p *Provider) exchangeManagedIdentity(ctx context.Context, t tenants.Record) (Credential, error) {
	endpoint := p.managedEndpoint
	q := url.Values{"api-version": {"2018-02-01"}, "resource": {t.BaseURL}}
	if t.ClientID != "" {
		q.Set("client_id", t.ClientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: err}
	}
	req.Header.Set("Metadata", "true")
	resp, err := p.hc.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Kind: KindNetworkUnavailable, TenantID: t.ID, Err: err}
	}
	defer resp.Body.Close()
	return p.readToken(t, resp)
}

func (p *Provider) postToken(ctx context.Context, t tenants.Record, endpoint string, form url.Values) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.hc.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Kind: KindNetworkUnavailable, TenantID: t.ID, Err: err}
	}
	defer resp.Body.Close()
	return p.readToken(t, resp)
}

func (p *Provider) readToken(t tenants.Record, resp *http.Response) (Credential, error) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 {
		return Credential{}, &AuthError{Kind: KindNetworkUnavailable, TenantID: t.ID, Err: fmt.Errorf("token endpoint returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(body, 256))}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return Credential{}, &AuthError{Kind: KindExchangeRejected, TenantID: t.ID, Err: fmt.Errorf("malformed token response")}
	}
	ttl, _ := tr.ExpiresIn.Int64()
	if ttl <= 0 {
		ttl = 3600
	}
	scopes := t.Scopes
	if tr.Scope != "" {
		scopes = strings.Fields(tr.Scope)
	}
	return Credential{
		TenantID:  t.ID,
		Token:     tr.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(ttl) * time.Second),
		Scopes:    scopes,
	}, nil
}

func tokenURL(t tenants.Record) string {
	return strings.TrimRight(t.AuthorityURL, "/") + "/token"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
