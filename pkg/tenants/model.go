// pkg/tenants/model.go
package tenants

import (
	"tenantplane/pkg/secrets"
)

// Mechanism selects how a tenant's credentials are obtained.
type Mechanism string

const (
	MechanismCertificate     Mechanism = "certificate"
	MechanismSharedSecret    Mechanism = "shared_secret"
	MechanismManagedIdentity Mechanism = "managed_identity"
)

// Status is the lifecycle state of a tenant within the registry.
// unknown is the absence of a record; offboarded is terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusOffboarded Status = "offboarded"
)

// Record describes one tenant. It never carries secret material: AuthRef
// points into a secret store and is resolved only at exchange time.
type Record struct {
	ID          string      `yaml:"tenant_id" json:"tenant_id"`
	DisplayName string      `yaml:"display_name" json:"display_name"`
	Mechanism   Mechanism   `yaml:"mechanism" json:"mechanism"`
	ClientID    string      `yaml:"client_id" json:"client_id"`
	AuthRef     secrets.Ref `yaml:"auth_ref" json:"auth_ref"`

	// AuthorityURL is the token endpoint base for this tenant's trust
	// domain; BaseURL is its API surface. Isolation is enforced on the
	// configuration identity (ID), never on these backends.
	AuthorityURL string `yaml:"authority_url" json:"authority_url"`
	BaseURL      string `yaml:"base_url" json:"base_url"`

	Scopes              []string `yaml:"scopes" json:"scopes"`
	RequiredPermissions []string `yaml:"required_permissions" json:"required_permissions"`

	Status Status `yaml:"-" json:"status"`
}

// Valid reports whether the record can be onboarded at all.
func (r Record) Valid() bool {
	if r.ID == "" || r.BaseURL == "" {
		return false
	}
	switch r.Mechanism {
	case MechanismCertificate, MechanismSharedSecret:
		return r.ClientID != "" && !r.AuthRef.IsZero() && r.AuthorityURL != ""
	case MechanismManagedIdentity:
		return true
	}
	return false
}

// HasAllPermissions reports whether granted covers every required
// permission on the record.
func (r Record) HasAllPermissions(granted []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, p := range r.RequiredPermissions {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
