package firewalllog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

func TestHasAccessLogDirectAndNested(t *testing.T) {
	direct := t.TempDir()
	if err := os.WriteFile(filepath.Join(direct, "access.log"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !hasAccessLog(direct) {
		t.Error("expected direct layout to be recognized")
	}

	nested := t.TempDir()
	if err := os.MkdirAll(filepath.Join(nested, "squid-logs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "squid-logs", "access.log"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !hasAccessLog(nested) {
		t.Error("expected nested layout to be recognized")
	}

	empty := t.TempDir()
	if hasAccessLog(empty) {
		t.Error("expected empty directory not to be recognized")
	}
}

func TestAccessLogPathPrefersDirect(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "access.log"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	source := LogSource{Kind: SourcePreserved, Path: dir}
	if got := source.AccessLogPath(); got != filepath.Join(dir, "access.log") {
		t.Errorf("got %q", got)
	}
}

func TestAccessLogPathFallsBackToNested(t *testing.T) {
	dir := t.TempDir()
	source := LogSource{Kind: SourcePreserved, Path: dir}
	if got := source.AccessLogPath(); got != filepath.Join(dir, "squid-logs", "access.log") {
		t.Errorf("got %q", got)
	}
}

func TestEnumerateSourcesFindsEnvAndTempDirs(t *testing.T) {
	envDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(envDir, "access.log"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(constants.EnvLogsDir, envDir)

	tempRoot := t.TempDir()
	t.Setenv("TMPDIR", tempRoot)

	older := filepath.Join(tempRoot, constants.PreservedLogDirPrefix+"1000")
	newer := filepath.Join(tempRoot, constants.PreservedLogDirPrefix+"2000")
	for _, d := range []string{older, newer} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "access.log"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sources, err := EnumerateSources(context.Background())
	if err != nil {
		t.Fatalf("EnumerateSources error: %v", err)
	}

	var preserved []LogSource
	for _, s := range sources {
		if s.Kind == SourcePreserved {
			preserved = append(preserved, s)
		}
	}
	if len(preserved) != 3 {
		t.Fatalf("expected 3 preserved sources (env + 2 temp dirs), got %d: %+v", len(preserved), preserved)
	}
	if preserved[0].TimestampMs != 2000 {
		t.Errorf("expected newest timestamp first, got %+v", preserved[0])
	}
}

func TestSelectMostRecentPrefersRunning(t *testing.T) {
	sources := []LogSource{
		{Kind: SourcePreserved, Path: "/tmp/a", TimestampMs: 5},
		{Kind: SourceRunning, ContainerName: constants.ProxyContainerName},
	}
	got := SelectMostRecent(sources)
	if got == nil || got.Kind != SourceRunning {
		t.Fatalf("expected Running source selected, got %+v", got)
	}
}

func TestSelectMostRecentFallsBackToFirstPreserved(t *testing.T) {
	sources := []LogSource{{Kind: SourcePreserved, Path: "/tmp/a"}}
	got := SelectMostRecent(sources)
	if got == nil || got.Path != "/tmp/a" {
		t.Fatalf("expected the sole preserved source, got %+v", got)
	}
}

func TestSelectMostRecentEmptyReturnsNil(t *testing.T) {
	if got := SelectMostRecent(nil); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestValidateUserSourceRejectsNonexistentPath(t *testing.T) {
	if _, err := ValidateUserSource(context.Background(), "/no/such/path"); err == nil {
		t.Error("expected error for nonexistent path")
	}
}

func TestValidateUserSourceAcceptsDirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "access.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := ValidateUserSource(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Kind != SourcePreserved || src.Path != dir {
		t.Errorf("got %+v", src)
	}

	srcFromFile, err := ValidateUserSource(context.Background(), logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srcFromFile.Path != dir {
		t.Errorf("expected parent directory %q, got %q", dir, srcFromFile.Path)
	}
}

func TestValidateUserSourceRunningKeywordRequiresContainer(t *testing.T) {
	if _, err := ValidateUserSource(context.Background(), "running"); err == nil {
		t.Error("expected error when no running container exists in the test environment")
	}
}

func TestListFormattedEmptyHintsEnvVar(t *testing.T) {
	out := ListFormatted(nil)
	if !strings.Contains(out, constants.EnvLogsDir) {
		t.Errorf("expected hint naming %s, got %q", constants.EnvLogsDir, out)
	}
}

func TestListFormattedRendersEachSource(t *testing.T) {
	sources := []LogSource{
		{Kind: SourceRunning, ContainerName: constants.ProxyContainerName},
		{Kind: SourcePreserved, Path: "/tmp/logs"},
	}
	out := ListFormatted(sources)
	if !strings.Contains(out, constants.ProxyContainerName) || !strings.Contains(out, "/tmp/logs") {
		t.Errorf("expected both sources rendered, got %q", out)
	}
}
