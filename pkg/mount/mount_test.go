package mount

import (
	"path/filepath"
	"testing"
)

func TestBuildFullFilesystemAccess(t *testing.T) {
	home := t.TempDir()
	plan, err := Build(BuildOptions{EnableFullFilesystemAccess: true, HomeDir: home})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.FullFilesystemAccess {
		t.Error("expected FullFilesystemAccess=true")
	}
	if len(plan.Mounts) != 1 || plan.Mounts[0].HostPath != "/" || plan.Mounts[0].Mode != ModeRW {
		t.Errorf("expected single rw host-root mount, got %+v", plan.Mounts)
	}
	for _, m := range plan.Mounts {
		if m.Hide {
			t.Error("full filesystem access must not hide anything")
		}
	}
}

func TestBuildUserMountsAddsEssentialsNotBlanketHost(t *testing.T) {
	home := t.TempDir()
	plan, err := Build(BuildOptions{
		HomeDir:    home,
		UserMounts: []string{"/data:/workspace/data:ro"},
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	var sawUser, sawCopilot, sawResolv, sawBlanket bool
	for _, m := range plan.Mounts {
		switch {
		case m.HostPath == "/data" && m.ContainerPath == "/workspace/data":
			sawUser = true
			if m.Mode != ModeRO {
				t.Errorf("expected ro mode preserved, got %v", m.Mode)
			}
		case m.HostPath == filepath.Join(home, ".copilot"):
			sawCopilot = true
		case m.HostPath == "/etc/resolv.conf":
			sawResolv = true
		case m.HostPath == "/" && m.ContainerPath == "/":
			sawBlanket = true
		}
	}
	if !sawUser {
		t.Error("expected the user-supplied mount to be present")
	}
	if !sawCopilot {
		t.Error("expected .copilot essential mount")
	}
	if !sawResolv {
		t.Error("expected /etc/resolv.conf essential mount")
	}
	if sawBlanket {
		t.Error("blanket host mount must not be added when user mounts are supplied")
	}
}

func TestBuildDefaultPlanHidesCredentialsBothNaturalAndHostPrefixed(t *testing.T) {
	home := t.TempDir()
	plan, err := Build(BuildOptions{HomeDir: home})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	dockerConfig := filepath.Join(home, ".docker", "config.json")
	var sawNatural, sawHostPrefixed, sawRWHostRoot bool
	for _, m := range plan.Mounts {
		if m.HostPath == "/" && m.ContainerPath == "/" {
			if m.Mode != ModeRO {
				t.Errorf("default plan host-root mount must be ro, got %v", m.Mode)
			}
		}
		if m.HostPath == dockerConfig && m.ContainerPath == dockerConfig && m.Hide {
			sawNatural = true
		}
		if m.HostPath == dockerConfig && m.ContainerPath == filepath.Join("/host", dockerConfig) && m.Hide {
			sawHostPrefixed = true
		}
		if m.Mode == ModeRW && m.HostPath == "/" {
			sawRWHostRoot = true
		}
	}
	if !sawNatural {
		t.Error("expected docker config hidden at its natural path")
	}
	if !sawHostPrefixed {
		t.Error("expected docker config hidden at its /host-prefixed path too")
	}
	if sawRWHostRoot {
		t.Error("default plan must not rw-mount the host root")
	}
}

func TestParseMountSpecValidation(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
		mode    Mode
	}{
		{"/a:/b", false, ModeRW},
		{"/a:/b:ro", false, ModeRO},
		{"/a:/b:rw", false, ModeRW},
		{"/a:/b:bogus", true, ""},
		{"/a", true, ""},
		{"/a:/b:ro:extra", true, ""},
		{":/b", true, ""},
		{"/a:", true, ""},
	}
	for _, tt := range tests {
		m, err := parseMountSpec(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMountSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && m.Mode != tt.mode {
			t.Errorf("parseMountSpec(%q) mode = %v, want %v", tt.spec, m.Mode, tt.mode)
		}
	}
}

func TestResolveWorkingDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	if got := resolveWorkingDir("", home); got != home {
		t.Errorf("empty request should fall back to home, got %q", got)
	}
	if got := resolveWorkingDir("/no/such/directory", home); got != home {
		t.Errorf("nonexistent directory should fall back to home, got %q", got)
	}
	existing := t.TempDir()
	if got := resolveWorkingDir(existing, home); got != existing {
		t.Errorf("existing directory should be kept, got %q", got)
	}
}

func TestBuildSecretEnvVarsMatchAllowList(t *testing.T) {
	home := t.TempDir()
	plan, err := Build(BuildOptions{HomeDir: home})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	found := map[string]bool{}
	for _, name := range plan.SecretEnvVars {
		found[name] = true
	}
	for _, want := range []string{"GITHUB_TOKEN", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		if !found[want] {
			t.Errorf("expected %s in SecretEnvVars", want)
		}
	}
}

func TestBuildNonRootUser(t *testing.T) {
	home := t.TempDir()
	plan, err := Build(BuildOptions{HomeDir: home})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if plan.User == "" || plan.User == "root" {
		t.Errorf("expected a non-root user, got %q", plan.User)
	}
}
