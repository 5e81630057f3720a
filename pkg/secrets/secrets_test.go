package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRefResolve(t *testing.T) {
	t.Run("Env", func(t *testing.T) {
		t.Setenv("SECRETS_TEST_VALUE", "from-env")
		v, err := Ref{Env: "SECRETS_TEST_VALUE"}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if v != "from-env" {
			t.Errorf("got %q", v)
		}
	})

	t.Run("EnvMissing", func(t *testing.T) {
		if _, err := (Ref{Env: "SECRETS_TEST_UNSET"}).Resolve(); err == nil {
			t.Fatal("expected error for unset env var")
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		v, err := Ref{File: path}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if v != "from-file" {
			t.Errorf("expected trimmed content, got %q", v)
		}
	})

	t.Run("Inline", func(t *testing.T) {
		v, err := Ref{Value: "inline"}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if v != "inline" {
			t.Errorf("got %q", v)
		}
	})

	t.Run("Unset", func(t *testing.T) {
		if _, err := (Ref{}).Resolve(); err == nil {
			t.Fatal("expected error for empty ref")
		}
	})
}

func TestRefStringNeverLeaksValue(t *testing.T) {
	r := Ref{Value: "super-secret"}
	if s := r.String(); s != "inline:***" {
		t.Errorf("inline ref rendered as %q", s)
	}
	if s := (Ref{Env: "TOKEN"}).String(); s != "env:TOKEN" {
		t.Errorf("env ref rendered as %q", s)
	}
}
