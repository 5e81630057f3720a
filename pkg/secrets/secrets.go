// pkg/secrets/secrets.go
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Ref points at secret material without carrying it. Exactly one of the
// fields is set. Tenant records store only refs; resolution happens at
// exchange time and the resolved value is never persisted or logged.
type Ref struct {
	Env   string `yaml:"env,omitempty" json:"env,omitempty"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"` // local development only
}

// IsZero reports whether the ref carries no source at all.
func (r Ref) IsZero() bool { return r.Env == "" && r.File == "" && r.Value == "" }

// String renders the ref for logs and audit detail without the material.
func (r Ref) String() string {
	switch {
	case r.Env != "":
		return "env:" + r.Env
	case r.File != "":
		return "file:" + r.File
	case r.Value != "":
		return "inline:***"
	}
	return "unset"
}

// Resolve returns the secret material. Missing sources are an error so a
// misconfigured tenant fails at exchange time, not silently.
func (r Ref) Resolve() (string, error) {
	switch {
	case r.Env != "":
		if v := os.Getenv(r.Env); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("secret env %s is not set", r.Env)
	case r.File != "":
		b, err := os.ReadFile(r.File)
		if err != nil {
			return "", fmt.Errorf("secret file %s: %w", r.File, err)
		}
		return strings.TrimSpace(string(b)), nil
	case r.Value != "":
		return r.Value, nil
	}
	return "", fmt.Errorf("no secret reference provided")
}
