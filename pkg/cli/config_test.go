package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

func TestLoadPolicyConfigValid(t *testing.T) {
	path := writeConfigFile(t, `{
		"allowDomains": ["github.com", "*.githubusercontent.com"],
		"dnsServers": ["8.8.8.8"],
		"enableHostAccess": true
	}`)

	cfg, err := LoadPolicyConfig(path)
	if err != nil {
		t.Fatalf("LoadPolicyConfig: %v", err)
	}
	if len(cfg.AllowDomains) != 2 || cfg.AllowDomains[0] != "github.com" {
		t.Errorf("unexpected AllowDomains: %+v", cfg.AllowDomains)
	}
	if !cfg.EnableHostAccess {
		t.Error("expected EnableHostAccess=true")
	}
}

func TestLoadPolicyConfigRejectsUnknownField(t *testing.T) {
	path := writeConfigFile(t, `{"allowDomains": ["github.com"], "bogusField": true}`)

	if _, err := LoadPolicyConfig(path); err == nil {
		t.Error("expected schema validation to reject an unknown field")
	}
}

func TestLoadPolicyConfigRejectsMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"allowDomains": [`)

	if _, err := LoadPolicyConfig(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestPolicyBuildOptionsFlagsTakePrecedenceOverConfig(t *testing.T) {
	cfg := &PolicyConfig{AllowDomains: []string{"from-config.example"}, DNSServers: []string{"1.1.1.1"}}

	opts := PolicyBuildOptions(cfg, []string{"from-flag.example"}, nil, "", false, false)
	if len(opts.AllowDomains) != 1 || opts.AllowDomains[0] != "from-flag.example" {
		t.Errorf("expected flag value to win, got %+v", opts.AllowDomains)
	}
	if len(opts.DNSServers) != 1 || opts.DNSServers[0] != "1.1.1.1" {
		t.Errorf("expected config DNS servers to fill in when no flag given, got %+v", opts.DNSServers)
	}
}

func TestMountBuildOptionsFlagsTakePrecedenceOverConfig(t *testing.T) {
	cfg := &PolicyConfig{Mounts: []string{"/host:/container"}, ContainerWorkdir: "/from-config"}

	opts := MountBuildOptions(cfg, []string{"/flag-host:/flag-container"}, "", false)
	if len(opts.UserMounts) != 1 || opts.UserMounts[0] != "/flag-host:/flag-container" {
		t.Errorf("expected flag mount to win, got %+v", opts.UserMounts)
	}
	if opts.WorkingDir != "/from-config" {
		t.Errorf("expected config working dir to fill in when no flag given, got %q", opts.WorkingDir)
	}
}
