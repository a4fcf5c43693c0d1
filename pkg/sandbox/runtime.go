package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// StdIO carries the agent's standard streams, mirroring exec.Cmd's own
// Stdin/Stdout/Stderr fields (spec §4.7 "attach stdio").
type StdIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// AgentSpec is everything StartAgent needs beyond the topology: the image,
// command line, environment, filesystem view, and syscall filter (spec §4.7
// "agent").
type AgentSpec struct {
	Image   string
	Command []string
	Env     map[string]string
	Mounts  []MountArg
	User    string
	WorkDir string
	Seccomp *seccompProfile
	TTY     bool
}

// MountArg is the runtime-facing form of a mount.Mount: a host path, a
// container path, and a mode, decoupling this package from pkg/mount's
// Go-level Mount type so Runtime implementations don't need that import.
type MountArg struct {
	HostPath      string
	ContainerPath string
	Mode          string // "ro" or "rw"
	Hide          bool
}

// Runtime is the container runtime's contract as the enforcement engine
// needs it (spec §6 "Container runtime"). A real implementation shells out
// to the container CLI; tests substitute a fake.
type Runtime interface {
	EnsureNetwork(ctx context.Context, top Topology) error
	RemoveNetwork(ctx context.Context, top Topology) error

	StartProxy(ctx context.Context, top Topology, cfg *ProxyConfig, proxyImage, squidConf, allowedDomains, logDir string) error
	ProbeProxyReady(ctx context.Context, top Topology, cfg *ProxyConfig) error

	StartInit(ctx context.Context, top Topology, rules *PacketFilterRules) (exitCode int, err error)

	StartAgent(ctx context.Context, top Topology, spec AgentSpec, stdio StdIO) (exitCode int, err error)

	StopContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
}

// dockerRuntime is the production Runtime, driving the container CLI via
// os/exec the same way the rest of this codebase shells out to external
// tools (e.g. the "gh" invocations in the CLI package).
type dockerRuntime struct{}

// NewDockerRuntime returns the production Runtime backed by the `docker` CLI.
func NewDockerRuntime() Runtime { return dockerRuntime{} }

func (dockerRuntime) EnsureNetwork(ctx context.Context, top Topology) error {
	check := exec.CommandContext(ctx, "docker", "network", "inspect", top.NetworkName)
	if err := check.Run(); err == nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, "docker", "network", "create",
		"--subnet", top.Subnet, top.NetworkName)
	if out, err := cmd.CombinedOutput(); err != nil {
		return startupError(err, "failed to create network %s: %s", top.NetworkName, strings.TrimSpace(string(out)))
	}
	return nil
}

func (dockerRuntime) RemoveNetwork(ctx context.Context, top Topology) error {
	cmd := exec.CommandContext(ctx, "docker", "network", "rm", top.NetworkName)
	if out, err := cmd.CombinedOutput(); err != nil {
		return teardownError(err, "failed to remove network %s: %s", top.NetworkName, strings.TrimSpace(string(out)))
	}
	return nil
}

func (dockerRuntime) StartProxy(ctx context.Context, top Topology, cfg *ProxyConfig, proxyImage, squidConf, allowedDomains, logDir string) error {
	configDir, err := os.MkdirTemp("", "gh-aw-firewall-proxy-config-")
	if err != nil {
		return startupError(err, "failed to create proxy config directory")
	}
	if err := os.WriteFile(filepath.Join(configDir, "squid.conf"), []byte(squidConf), 0o644); err != nil {
		return startupError(err, "failed to write squid.conf")
	}
	if err := os.WriteFile(filepath.Join(configDir, "allowed_domains.txt"), []byte(allowedDomains), 0o644); err != nil {
		return startupError(err, "failed to write allowed_domains.txt")
	}

	if proxyImage == "" {
		proxyImage = constants.DefaultProxyImage
	}

	args := []string{
		"run", "-d",
		"--name", "gh-aw-firewall-proxy",
		"--user", "proxy",
		"--network", top.NetworkName,
		"--ip", top.ProxyIP,
		"-v", logDir + ":/var/log/squid",
		"-v", filepath.Join(configDir, "squid.conf") + ":/etc/squid/squid.conf:ro",
		"-v", filepath.Join(configDir, "allowed_domains.txt") + ":/etc/squid/allowed_domains.txt:ro",
		proxyImage,
	}
	cmd := exec.CommandContext(ctx, "docker", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return startupError(err, "failed to start proxy container: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (dockerRuntime) ProbeProxyReady(ctx context.Context, top Topology, cfg *ProxyConfig) error {
	cmd := exec.CommandContext(ctx, "docker", "exec", "gh-aw-firewall-proxy",
		"nc", "-z", cfg.ListenAddr, fmt.Sprintf("%d", cfg.ListenPort))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("proxy not yet listening: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (dockerRuntime) StartInit(ctx context.Context, top Topology, rules *PacketFilterRules) (int, error) {
	ipv4Cmds, ipv6Cmds := rules.RenderCommands()
	var script strings.Builder
	script.WriteString("set -e\n")
	for _, c := range ipv4Cmds {
		script.WriteString(c + "\n")
	}
	for _, c := range ipv6Cmds {
		// ip6tables absence is a warning, not fatal (spec §9).
		script.WriteString(c + " || echo 'warning: ip6tables rule not applied' >&2\n")
	}

	args := []string{
		"run", "--rm",
		"--name", "gh-aw-firewall-init",
		"--cap-add", "NET_ADMIN",
		"--network", "container:gh-aw-firewall-proxy",
		"--entrypoint", "sh",
		"alpine",
		"-c", script.String(),
	}
	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := asExitError(err); ok {
			return exitErr, startupError(err, "init exited non-zero: %s", strings.TrimSpace(string(out)))
		}
		return -1, startupError(err, "failed to run init container: %s", strings.TrimSpace(string(out)))
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "warning: ip6tables") {
			fmt.Fprintln(os.Stderr, line)
		}
	}
	return 0, nil
}

func (dockerRuntime) StartAgent(ctx context.Context, top Topology, spec AgentSpec, stdio StdIO) (int, error) {
	args := []string{
		"run", "--rm",
		"--name", "gh-aw-firewall-agent",
		"--network", "container:gh-aw-firewall-proxy",
		"--cap-drop", "ALL",
		"--user", spec.User,
		"--workdir", spec.WorkDir,
	}
	if spec.Seccomp != nil {
		profile, err := spec.Seccomp.RenderJSON()
		if err != nil {
			return -1, runtimeError(err, "failed to render seccomp profile")
		}
		profilePath := filepath.Join(os.TempDir(), "gh-aw-firewall-seccomp-"+top.NetworkName+".json")
		if err := os.WriteFile(profilePath, profile, 0o644); err != nil {
			return -1, runtimeError(err, "failed to write seccomp profile")
		}
		args = append(args, "--security-opt", "seccomp="+profilePath)
	}
	for _, m := range spec.Mounts {
		host := m.HostPath
		if m.Hide {
			host = "/dev/null" // the container path reads as an empty file
		}
		flag := fmt.Sprintf("%s:%s:%s", host, m.ContainerPath, m.Mode)
		args = append(args, "-v", flag)
	}
	for k, v := range spec.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if spec.TTY {
		args = append(args, "-it")
	}
	image := spec.Image
	if image == "" {
		image = constants.DefaultAgentImage
	}
	args = append(args, image)
	args = append(args, spec.Command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	// Cancellation signals the whole process group, not just the direct
	// child, so it reaches anything the docker CLI spawned (spec §5
	// "Cancellation": SIGTERM, grace period, SIGKILL). In --tty mode,
	// runWithTTY's pty.Start already puts the child in its own session via
	// Setsid, which gives it a fresh pgid equal to its pid; setting Setpgid
	// here too would conflict with that (Setsid and Setpgid can't both be
	// set), so it's only needed on the non-TTY path.
	if !spec.TTY {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	cmd.Cancel = func() error {
		if err := unix.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		return nil
	}
	cmd.WaitDelay = 10 * time.Second

	if spec.TTY {
		return runWithTTY(cmd)
	}

	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if code, ok := asExitError(err); ok {
		return code, nil
	}
	return -1, runtimeError(err, "failed to start agent container")
}

func (dockerRuntime) StopContainer(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "docker", "stop", "--time", "10", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return teardownError(err, "failed to stop container %s: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}

func (dockerRuntime) RemoveContainer(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return teardownError(err, "failed to remove container %s: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}

// asExitError extracts a child process's exit code, preserving 0-255
// (spec §6 "Exit codes").
func asExitError(err error) (int, bool) {
	var exitErr *exec.ExitError
	if !isExitError(err, &exitErr) {
		return 0, false
	}
	return exitErr.ExitCode(), true
}

func isExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
