package tenants

import (
	"os"
	"path/filepath"
	"testing"
)

const bootstrapYAML = `tenants:
  - tenant_id: contoso
    display_name: Contoso Ltd
    mechanism: shared_secret
    client_id: client-contoso
    auth_ref:
      env: CONTOSO_SECRET
    authority_url: https://login.example.com/contoso
    base_url: https://api.example.com
    scopes: [default]
    required_permissions:
      - user.read.all
  - tenant_id: fabrikam
    display_name: Fabrikam Inc
    mechanism: managed_identity
    base_url: https://api.example.com
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	recs, err := LoadFile(writeTempFile(t, bootstrapYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}
	if recs[0].ID != "contoso" || recs[0].Mechanism != MechanismSharedSecret {
		t.Errorf("first record: %+v", recs[0])
	}
	if recs[0].AuthRef.Env != "CONTOSO_SECRET" {
		t.Errorf("auth ref: %+v", recs[0].AuthRef)
	}
	if recs[1].Mechanism != MechanismManagedIdentity {
		t.Errorf("second record: %+v", recs[1])
	}
}

func TestLoadFileRejectsIncompleteEntries(t *testing.T) {
	broken := `tenants:
  - tenant_id: nameless
    mechanism: shared_secret
    base_url: https://api.example.com
`
	if _, err := LoadFile(writeTempFile(t, broken)); err == nil {
		t.Fatal("expected an error for an incomplete record")
	}
}

func TestLoadFileMissingPath(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
