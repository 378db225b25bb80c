package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "guacgw.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validYAML = `
websocket:
  port: 4567
  maxInactivityMin: 15
guacd:
  hostname: 127.0.0.1
  port: 4822
  timeoutMs: 5000
password: s3cret
client:
  defaultArguments:
    rdp:
      width: "1024"
      height: "768"
  unencryptedArguments:
    rdp:
      width: ""
`

func TestLoad_ValidFile(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guacd.Hostname != "127.0.0.1" {
		t.Errorf("Guacd.Hostname = %q", cfg.Guacd.Hostname)
	}
	if got := cfg.Client.Policy("rdp").Defaults["width"]; got != "1024" {
		t.Errorf("Policy(rdp).Defaults[width] = %q", got)
	}
	if !cfg.Client.KnownType("rdp") {
		t.Error("KnownType(rdp) = false")
	}
	if cfg.Client.KnownType("ssh") {
		t.Error("KnownType(ssh) = true, want false")
	}
}

func TestLoad_EnvOverridesPassword(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("GUACGW_PASSWORD", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Password != "from-env" {
		t.Errorf("Password = %q, want from-env", cfg.Password)
	}
}

func TestLoad_MissingRequiredFieldsAggregated(t *testing.T) {
	path := writeTempConfig(t, "websocket:\n  port: 0\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("err is %T, want ValidationErrors", err)
	}
	if len(errs) < 3 {
		t.Errorf("got %d errors, want at least 3: %v", len(errs), errs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/guacgw.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
