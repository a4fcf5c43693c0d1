package firewalllog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// SourceKind distinguishes a LogSource's two variants (spec §3 LogSource).
type SourceKind int

const (
	SourceRunning SourceKind = iota
	SourcePreserved
)

// LogSource is the tagged union consumed by the streamer and discovery
// listing: a Running source names the live proxy container; a Preserved
// source names a directory holding an access.log.
type LogSource struct {
	Kind          SourceKind
	ContainerName string // set when Kind == SourceRunning
	Path          string // directory holding access.log, set when Kind == SourcePreserved
	TimestampMs   int64  // parsed from the squid-logs-<ms> directory name, 0 if unknown
}

// AccessLogPath resolves the concrete access.log path for a Preserved
// source, recognizing both the direct and nested layouts (spec §4.2/Design
// Notes "Preserved-log layout").
func (s LogSource) AccessLogPath() string {
	direct := filepath.Join(s.Path, "access.log")
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	return filepath.Join(s.Path, "squid-logs", "access.log")
}

var preservedDirRE = regexp.MustCompile(`^` + regexp.QuoteMeta(constants.PreservedLogDirPrefix) + `(\d+)$`)

// isProxyContainerRunning shells out to the container runtime, grounded in
// the same exec.Command pattern the CLI uses for its other external tools.
func isProxyContainerRunning(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", constants.ProxyContainerName)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

// hasAccessLog reports whether dir contains an access.log under either the
// direct or squid-logs/-nested layout.
func hasAccessLog(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "access.log")); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(dir, "squid-logs", "access.log"))
	return err == nil
}

// EnumerateSources consults the running proxy container, the AWF_LOGS_DIR
// environment variable, and a glob over the system temp area for
// squid-logs-<ms> directories (spec §4.2). The Running source comes first;
// the Preserved sources follow, sorted by timestamp descending, so an
// AWF_LOGS_DIR source (which has no timestamp) sorts after the temp-area ones.
func EnumerateSources(ctx context.Context) ([]LogSource, error) {
	var sources []LogSource

	p := pool.New().WithMaxGoroutines(3)
	var running bool
	var envSource *LogSource
	var tempSources []LogSource

	p.Go(func() {
		running = isProxyContainerRunning(ctx)
	})
	p.Go(func() {
		if dir := os.Getenv(constants.EnvLogsDir); dir != "" && hasAccessLog(dir) {
			envSource = &LogSource{Kind: SourcePreserved, Path: dir}
		}
	})
	p.Go(func() {
		// Errors from the glob layer are treated as "no preserved sources found".
		matches, _ := filepath.Glob(filepath.Join(os.TempDir(), constants.PreservedLogDirPrefix+"*"))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			if !hasAccessLog(m) {
				continue
			}
			ms := int64(0)
			if g := preservedDirRE.FindStringSubmatch(filepath.Base(m)); g != nil {
				ms, _ = strconv.ParseInt(g[1], 10, 64)
			}
			tempSources = append(tempSources, LogSource{Kind: SourcePreserved, Path: m, TimestampMs: ms})
		}
	})
	p.Wait()

	if running {
		sources = append(sources, LogSource{Kind: SourceRunning, ContainerName: constants.ProxyContainerName})
	}

	var preserved []LogSource
	if envSource != nil {
		preserved = append(preserved, *envSource)
	}
	preserved = append(preserved, tempSources...)
	sort.SliceStable(preserved, func(i, j int) bool {
		return preserved[i].TimestampMs > preserved[j].TimestampMs
	})

	return append(sources, preserved...), nil
}

// SelectMostRecent prefers a Running source; otherwise the first Preserved
// source in the ordered list; nil on empty (spec §4.2).
func SelectMostRecent(sources []LogSource) *LogSource {
	for _, s := range sources {
		if s.Kind == SourceRunning {
			s := s
			return &s
		}
	}
	if len(sources) == 0 {
		return nil
	}
	s := sources[0]
	return &s
}

// ValidateUserSource accepts the literal keyword "running" (requiring the
// canonical proxy container to be up), a directory containing access.log,
// or a file path whose parent directory becomes the source (spec §4.2).
func ValidateUserSource(ctx context.Context, raw string) (*LogSource, error) {
	if raw == "running" {
		if !isProxyContainerRunning(ctx) {
			return nil, fmt.Errorf("no running %s container found", constants.ProxyContainerName)
		}
		return &LogSource{Kind: SourceRunning, ContainerName: constants.ProxyContainerName}, nil
	}

	info, err := os.Stat(raw)
	if err != nil {
		return nil, fmt.Errorf("log source %q does not exist: %w", raw, err)
	}

	dir := raw
	if !info.IsDir() {
		dir = filepath.Dir(raw)
	}
	if !hasAccessLog(dir) {
		return nil, fmt.Errorf("no access.log found under %q", dir)
	}
	return &LogSource{Kind: SourcePreserved, Path: dir}, nil
}

// ListFormatted renders a human-readable listing of discovered sources,
// hinting at the environment variable when none are found (spec §4.2).
func ListFormatted(sources []LogSource) string {
	if len(sources) == 0 {
		return fmt.Sprintf("no log sources found (set %s to point at a preserved log directory)", constants.EnvLogsDir)
	}
	var b strings.Builder
	for _, s := range sources {
		switch s.Kind {
		case SourceRunning:
			fmt.Fprintf(&b, "- running: %s\n", s.ContainerName)
		case SourcePreserved:
			fmt.Fprintf(&b, "- preserved: %s\n", s.Path)
		}
	}
	return b.String()
}
