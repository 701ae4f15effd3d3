package seed

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `---
companies:
  - name: TechCorp
    domain: TechCorp.com
    type: enterprise
    watchlist:
      - type: email
        value: Admin@TechCorp.com
      - type: domain
        value: techcorp.io
  - name: Acme
    domain: acme.io
users:
  - username: root
    email: root@example.com
    password: "{{ BW_SEED_ROOT_PASSWORD }}"
    role: admin
  - username: alice
    email: alice@techcorp.com
    password: Secret123
    company: techcorp.com
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	loader := NewLoader(writeSeed(t, sample))
	loader.lookup = func(name string) (string, bool) {
		if name == "BW_SEED_ROOT_PASSWORD" {
			return "Sup3rSecret", true
		}
		return "", false
	}

	f, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Companies) != 2 || len(f.Users) != 2 {
		t.Fatalf("Load() = %d companies, %d users, want 2 and 2", len(f.Companies), len(f.Users))
	}
	if got := f.Users[0].Password; got != "Sup3rSecret" {
		t.Errorf("expanded password = %q, want Sup3rSecret", got)
	}
	if got := len(f.Companies[0].Watchlist); got != 2 {
		t.Errorf("watchlist entries = %d, want 2", got)
	}
}

func TestLoaderUnsetVariableIsEmpty(t *testing.T) {
	loader := NewLoader(writeSeed(t, sample))
	loader.lookup = func(string) (string, bool) { return "", false }

	f, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Users[0].Password != "" {
		t.Errorf("password = %q, want empty", f.Users[0].Password)
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	if _, err := NewLoader("/nonexistent/path/seed.yaml").Load(); err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestLoaderInvalidYAML(t *testing.T) {
	if _, err := NewLoader(writeSeed(t, "companies: [")).Load(); err == nil {
		t.Error("Load() with broken yaml should return error")
	}
}
