// Package mount turns a domain policy and user-supplied mount flags into the
// bind-mount, credential-hiding, and environment-filtering plan applied to
// the agent container (spec §4.6).
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// Mode is a bind mount's access mode.
type Mode string

const (
	ModeRO Mode = "ro"
	ModeRW Mode = "rw"
)

// Mount is one bind mount from the host into the agent's filesystem view.
// Hide marks a credential-overlay mount: the container path is replaced by
// an empty file rather than the host path's real content (spec §3
// MountPlan, "Credential hiding" design note).
type Mount struct {
	HostPath      string
	ContainerPath string
	Mode          Mode
	Hide          bool
}

// MountPlan is the full set of filesystem and environment decisions applied
// to the agent container (spec §3 MountPlan, §4.6).
type MountPlan struct {
	Mounts []Mount

	// WorkingDir is the agent's working directory, already resolved to an
	// existing path in the plan's filesystem view (falls back to HomeDir).
	WorkingDir string

	// User is the agent's effective, non-root user.
	User string

	// FullFilesystemAccess records whether the blanket host-root mount was
	// used, so callers can render the prominent security warning.
	FullFilesystemAccess bool

	// SecretEnvVars is the allow-list of environment variable names eligible
	// for one-shot caching by the agent's preload shim (spec §4.6, §9).
	SecretEnvVars []string
	// SkipUnset disables the clear-after-first-read behavior, for
	// diagnostic use only (AWF_ONE_SHOT_SKIP_UNSET).
	SkipUnset bool
}

// defaultAgentUser is the non-root user the agent container runs as.
const defaultAgentUser = "agent"

// BuildOptions configures Build.
type BuildOptions struct {
	EnableFullFilesystemAccess bool
	// UserMounts are raw host:container[:mode] specs (spec §4.6 rule 2).
	UserMounts []string
	// WorkingDir is the user-requested working directory; may not exist in
	// the resulting view, in which case Build falls back to HomeDir.
	WorkingDir string
	// HomeDir overrides the home directory used for credential paths and
	// working-directory fallback; defaults to os.UserHomeDir().
	HomeDir string
	SkipUnsetSecrets bool
}

// Build implements the rules of spec §4.6.
func Build(opts BuildOptions) (*MountPlan, error) {
	home := opts.HomeDir
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = h
	}

	plan := &MountPlan{
		User:          defaultAgentUser,
		SecretEnvVars: append([]string(nil), constants.SecretEnvVarNames...),
		SkipUnset:     opts.SkipUnsetSecrets,
	}

	switch {
	case opts.EnableFullFilesystemAccess:
		plan.FullFilesystemAccess = true
		plan.Mounts = []Mount{{HostPath: "/", ContainerPath: "/", Mode: ModeRW}}

	case len(opts.UserMounts) > 0:
		mounts, err := parseUserMounts(opts.UserMounts)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, essentialMounts(home)...)
		plan.Mounts = mounts

	default:
		plan.Mounts = defaultHostView(home)
	}

	plan.WorkingDir = resolveWorkingDir(opts.WorkingDir, home)

	return plan, nil
}

// parseUserMounts parses each "host:container[:mode]" spec (spec §4.6).
func parseUserMounts(specs []string) ([]Mount, error) {
	mounts := make([]Mount, 0, len(specs))
	for _, spec := range specs {
		m, err := parseMountSpec(spec)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func parseMountSpec(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Mount{}, fmt.Errorf("invalid mount spec %q: want host:container[:mode]", spec)
	}

	host, container := parts[0], parts[1]
	if host == "" || container == "" {
		return Mount{}, fmt.Errorf("invalid mount spec %q: host and container paths are required", spec)
	}

	mode := ModeRW
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			mode = ModeRO
		case "rw":
			mode = ModeRW
		default:
			return Mount{}, fmt.Errorf("invalid mount spec %q: mode must be ro or rw, got %q", spec, parts[2])
		}
	}

	return Mount{HostPath: host, ContainerPath: container, Mode: mode}, nil
}

// essentialMounts is the irreducible set added alongside user-supplied
// mounts (spec §4.6 rule 2): the user's package-extraction directory and
// resolv.conf. The working directory itself is added by resolveWorkingDir's
// caller via WorkingDir, not as a bind mount here.
func essentialMounts(home string) []Mount {
	return []Mount{
		{HostPath: filepath.Join(home, ".copilot"), ContainerPath: filepath.Join(home, ".copilot"), Mode: ModeRW},
		{HostPath: "/etc/resolv.conf", ContainerPath: "/etc/resolv.conf", Mode: ModeRO},
	}
}

// credentialPaths is the fixed set of credential-bearing files hidden from
// the agent in the default plan (spec §4.6 rule 3, §3 "Credential hiding").
func credentialPaths(home string) []string {
	return []string{
		filepath.Join(home, ".docker", "config.json"),
		filepath.Join(home, ".config", "gh", "hosts.yml"),
		filepath.Join(home, ".npmrc"),
		filepath.Join(home, ".cargo", "credentials"),
		filepath.Join(home, ".cargo", "credentials.toml"),
		filepath.Join(home, ".composer", "auth.json"),
		filepath.Join(home, ".config", "composer", "auth.json"),
	}
}

// telemetryPaths is the fixed set of usage-telemetry paths hidden from the
// agent alongside credentials (spec §4.6 rule 3).
func telemetryPaths(home string) []string {
	return []string{
		filepath.Join(home, ".config", "gh", "telemetry"),
		filepath.Join(home, ".docker", "scout"),
	}
}

// mcpLogsDir is the MCP client log directory hidden in the default plan.
func mcpLogsDir(home string) string {
	return filepath.Join(home, ".copilot", "logs")
}

// defaultHostView produces the read-only-host-plus-hidden-credentials plan
// of spec §4.6 rule 3, including the chroot-layout duplication under
// /host/... for every hidden path.
func defaultHostView(home string) []Mount {
	mounts := []Mount{{HostPath: "/", ContainerPath: "/", Mode: ModeRO}}

	hidden := append(credentialPaths(home), telemetryPaths(home)...)
	hidden = append(hidden, mcpLogsDir(home))

	for _, path := range hidden {
		mounts = append(mounts, Mount{HostPath: path, ContainerPath: path, Hide: true, Mode: ModeRO})
		mounts = append(mounts, Mount{HostPath: path, ContainerPath: filepath.Join("/host", path), Hide: true, Mode: ModeRO})
	}

	return mounts
}

// resolveWorkingDir implements spec §4.6 rule 4: fall back to home if the
// requested directory does not exist on the host (and thus won't exist in
// the resulting filesystem view, ro-host or selective-mount alike).
func resolveWorkingDir(requested, home string) string {
	if requested == "" {
		return home
	}
	if info, err := os.Stat(requested); err == nil && info.IsDir() {
		return requested
	}
	return home
}
