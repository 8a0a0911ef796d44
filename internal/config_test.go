package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sylvanet/arbor/internal/federation"
	pkgconfig "github.com/sylvanet/arbor/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Federation.Domain = "arbor.example"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("config without a federation domain accepted")
	}

	cfg = validConfig()
	cfg.App.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 accepted")
	}

	cfg = validConfig()
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty database path accepted")
	}

	cfg = validConfig()
	cfg.Federation.FetchLimit = 5000
	if err := cfg.Validate(); err == nil {
		t.Error("absurd fetch limit accepted")
	}
}

func TestFederationLimitFallback(t *testing.T) {
	c := FederationConfig{FetchLimit: 7}
	if got := c.Limit(); got != 7 {
		t.Errorf("Limit() = %d, want 7", got)
	}
	c.FetchLimit = 0
	if got := c.Limit(); got != federation.DefaultFetchLimit {
		t.Errorf("Limit() = %d, want default %d", got, federation.DefaultFetchLimit)
	}
}

func TestHTTPAddress(t *testing.T) {
	c := HTTPConfig{Port: 9090}
	if got := c.Address(); got != ":9090" {
		t.Errorf("Address() = %q", got)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ARBOR_TEST_DOMAIN", "arbor.example")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
sqlite:
  path: /tmp/arbor.db
federation:
  domain: ${ARBOR_TEST_DOMAIN}
  fetch_limit: 10
slurs:
  pattern_file: /etc/arbor/slurs.txt
metrics:
  token: sekret
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Federation.Domain != "arbor.example" {
		t.Errorf("domain = %q, env var not expanded", cfg.Federation.Domain)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Federation.FetchLimit != 10 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Metrics.Token != "sekret" || cfg.Slurs.PatternFile != "/etc/arbor/slurs.txt" {
		t.Errorf("optional sections not parsed: %+v", cfg)
	}
	// Values absent from the file keep their defaults.
	if cfg.Federation.FetchTimeoutSecs != 30 {
		t.Errorf("timeout default lost: %d", cfg.Federation.FetchTimeoutSecs)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  http:\n    port: 8080\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err == nil {
		t.Error("config without a federation domain loaded")
	}
}
