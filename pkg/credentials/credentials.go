// pkg/credentials/credentials.go
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Credential is a short-lived bearer token scoped to exactly one tenant.
// It lives only in the provider's cache; it is never persisted and only
// its fingerprint is ever logged.
type Credential struct {
	TenantID  string
	Token     string
	ExpiresAt time.Time
	Scopes    []string
}

// Fingerprint is a stable redacted identifier for the token, safe for
// audit detail.
func (c Credential) Fingerprint() string {
	h := sha256.Sum256([]byte(c.Token))
	return hex.EncodeToString(h[:])[:16]
}

// Fresh reports whether the credential is still usable given the
// refresh safety margin.
func (c Credential) Fresh(now time.Time, margin time.Duration) bool {
	return c.Token != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// ErrKind classifies acquisition failures.
type ErrKind string

const (
	KindExpiredReference   ErrKind = "expired_reference"
	KindExchangeRejected   ErrKind = "exchange_rejected"
	KindNetworkUnavailable ErrKind = "network_unavailable"
)

// AuthError wraps a failed credential acquisition. Retry-with-backoff
// is deliberately the caller's job, not this package's.
type AuthError struct {
	Kind     ErrKind
	TenantID string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential acquisition for %s failed (%s): %v", e.TenantID, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AsAuthError unwraps err into an AuthError when possible.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
