package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/console"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/mount"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/sandbox"
)

// reservedStartupFailureExitCode is returned when the sandbox itself failed
// to start (spec §6 "Exit codes": "a reserved non-zero code when the
// sandbox failed to start").
const reservedStartupFailureExitCode = 2

// reservedSignalExitCode is returned "conventionally on signal" (spec §6).
const reservedSignalExitCode = 130

// runFlags collects the run command's flag values before they're merged
// with an optional --config document and turned into a policy.BuildOptions
// / mount.BuildOptions pair.
type runFlags struct {
	allowDomains              []string
	dnsServers                []string
	allowHostPorts            string
	enableHostAccess          bool
	mounts                    []string
	containerWorkdir          string
	env                       []string
	envAll                    bool
	tty                       bool
	keepContainers            bool
	logLevel                  string
	allowFullFilesystemAccess bool
	configPath                string
	proxyImage                string
	agentImage                string
}

// NewRunCommand builds the "run" subcommand (spec §4.7/§6): it composes a
// PolicySet and MountPlan from flags (and an optional --config document),
// then hands them to the enforcement engine.
func NewRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command inside the egress-filtered sandbox",
		Long: `Run executes a user command inside an isolated, dual-container sandbox where
every TCP/TLS connection is forced through a filtering forward proxy and
every other TCP/DNS packet is dropped by a packet filter (spec §1).

Examples:
  ` + rootCommandName + ` run --allow-domains github.com,*.githubusercontent.com -- npm install
  ` + rootCommandName + ` run --allow-domains localhost --mount $PWD:/work -- ./agent.sh`,
		Args:                  cobra.ArbitraryArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args
			if dashIdx := cmd.ArgsLenAtDash(); dashIdx >= 0 {
				command = args[dashIdx:]
			}
			if len(command) == 0 {
				return fmt.Errorf("no command given: usage is `%s run [flags] -- <command> [args...]`", rootCommandName)
			}

			exitCode, err := runSandbox(cmd.Context(), flags, command)
			if err != nil {
				fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
			}
			os.Exit(exitCode)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&flags.allowDomains, "allow-domains", nil, "comma-separated domain allow-list entries")
	cmd.Flags().StringSliceVar(&flags.dnsServers, "dns-servers", nil, "comma-separated DNS server IP literals")
	cmd.Flags().StringVar(&flags.allowHostPorts, "allow-host-ports", "", "TCP port or lo-hi range on the host gateway")
	cmd.Flags().BoolVar(&flags.enableHostAccess, "enable-host-access", false, "force host-gateway visibility")
	cmd.Flags().StringArrayVar(&flags.mounts, "mount", nil, "host:container[:mode] bind mount (repeatable)")
	cmd.Flags().StringVar(&flags.containerWorkdir, "container-workdir", "", "working directory inside the agent")
	cmd.Flags().StringArrayVar(&flags.env, "env", nil, "k=v environment variable (repeatable)")
	cmd.Flags().BoolVar(&flags.envAll, "env-all", false, "pass through all caller environment variables")
	cmd.Flags().BoolVar(&flags.tty, "tty", false, "allocate a pseudo-terminal for the agent")
	cmd.Flags().BoolVar(&flags.keepContainers, "keep-containers", false, "preserve all three containers for inspection after run")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")
	cmd.Flags().BoolVar(&flags.allowFullFilesystemAccess, "allow-full-filesystem-access", false, "disable selective mounting and credential hiding")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "optional JSON sandbox-policy document")
	cmd.Flags().StringVar(&flags.proxyImage, "proxy-image", "gh-aw-firewall/proxy:latest", "proxy container image")
	cmd.Flags().StringVar(&flags.agentImage, "agent-image", "gh-aw-firewall/agent:latest", "agent container image")

	return cmd
}

// runSandbox builds the PolicySet/MountPlan, installs signal handling, and
// delegates to sandbox.Run, returning the process exit code (spec §6).
func runSandbox(ctx context.Context, flags runFlags, command []string) (int, error) {
	var cfg *PolicyConfig
	if flags.configPath != "" {
		loaded, err := LoadPolicyConfig(flags.configPath)
		if err != nil {
			return reservedStartupFailureExitCode, err
		}
		cfg = loaded
	}

	policyOpts := PolicyBuildOptions(cfg, flags.allowDomains, flags.dnsServers, flags.allowHostPorts, flags.enableHostAccess, flags.allowFullFilesystemAccess)
	ps, err := policy.Build(policyOpts)
	if err != nil {
		return reservedStartupFailureExitCode, fmt.Errorf("invalid domain policy: %w", err)
	}
	logDecisions(flags.logLevel, ps)

	mountOpts := MountBuildOptions(cfg, flags.mounts, flags.containerWorkdir, flags.allowFullFilesystemAccess)
	mp, err := mount.Build(mountOpts)
	if err != nil {
		return reservedStartupFailureExitCode, fmt.Errorf("invalid mount plan: %w", err)
	}
	if mp.FullFilesystemAccess {
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage(
			"--allow-full-filesystem-access disables credential hiding and selective mounting: the agent can read and write the entire host filesystem"))
	}

	env := buildEnv(flags.env, flags.envAll)

	logDir, err := preservedLogDir()
	if err != nil {
		return reservedStartupFailureExitCode, err
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, runErr := sandbox.Run(runCtx, sandbox.Options{
		RunID:          runID(),
		Policy:         ps,
		MountPlan:      mp,
		Command:        command,
		Env:            env,
		StdIO:          sandbox.StdIO{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr},
		TTY:            flags.tty,
		KeepContainers: flags.keepContainers,
		LogDir:         logDir,
		ProxyImage:     flags.proxyImage,
		AgentImage:     flags.agentImage,
	})

	for _, tdErr := range result.Teardown {
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage("teardown: "+tdErr.Error()))
	}

	if runErr != nil {
		if runCtx.Err() != nil {
			return reservedSignalExitCode, nil
		}
		return reservedStartupFailureExitCode, runErr
	}

	return result.ExitCode, nil
}

// buildEnv merges explicit --env k=v pairs with the full caller environment
// when --env-all is set (spec §6).
func buildEnv(envFlags []string, envAll bool) map[string]string {
	env := make(map[string]string)
	if envAll {
		for _, kv := range os.Environ() {
			if idx := strings.IndexByte(kv, '='); idx >= 0 {
				env[kv[:idx]] = kv[idx+1:]
			}
		}
	}
	for _, kv := range envFlags {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		env[kv[:idx]] = kv[idx+1:]
	}
	return env
}

// logDecisions prints the PolicySet's recorded implicit decisions (e.g. the
// localhost-keyword rewrite) at --log-level debug or info; warn and error
// suppress them (spec §4.5 rule 3 "The log records this decision").
func logDecisions(logLevel string, ps *policy.PolicySet) {
	if logLevel == "warn" || logLevel == "error" {
		return
	}
	for _, d := range ps.Decisions {
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage(d))
	}
}

// runID derives a stable per-invocation identifier used to name the private
// network and containers (spec §4.7 "Container topology").
func runID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// preservedLogDir creates the squid-logs-<ms> directory the proxy's access
// log is bound to for this invocation (spec §3 "Lifecycles": "on teardown
// they may be preserved to a timestamped directory under the system temp
// area").
func preservedLogDir() (string, error) {
	dir := fmt.Sprintf("%s/squid-logs-%d", os.TempDir(), time.Now().UnixMilli())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return dir, nil
}
