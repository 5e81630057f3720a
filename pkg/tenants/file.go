// pkg/tenants/file.go
package tenants

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootstrapFile is the YAML shape supplied by the configuration
// collaborator at startup. Records only; no secret material.
type bootstrapFile struct {
	Tenants []Record `yaml:"tenants"`
}

// LoadFile reads the startup tenant set. Each record is validated here
// for shape only; permission validation happens during onboarding.
func LoadFile(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f bootstrapFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tenant file %s: %w", path, err)
	}
	for i, rec := range f.Tenants {
		if !rec.Valid() {
			return nil, fmt.Errorf("tenant file %s: entry %d (%q) is incomplete", path, i, rec.ID)
		}
	}
	return f.Tenants, nil
}
