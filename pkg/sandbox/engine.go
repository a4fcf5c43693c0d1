package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/console"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/mount"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
)

// proxyReadyBackoff is the delay before each readiness re-probe: 2s, 4s,
// 10s, then 20s for every later retry, until proxyReadyBudget (spec §4.7's
// "~45s total budget") has passed.
var proxyReadyBackoff = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

const proxyReadyBudget = 45 * time.Second

// Options configures one sandbox invocation (spec §4.7 "run(policy,
// mountPlan, command, env, stdio)").
type Options struct {
	RunID          string
	Policy         *policy.PolicySet
	MountPlan      *mount.MountPlan
	Command        []string
	Env            map[string]string
	StdIO          StdIO
	TTY            bool
	KeepContainers bool
	LogDir         string // host directory the proxy's access log is bound to

	ProxyImage string
	AgentImage string

	Runtime Runtime // nil selects the production docker-backed runtime
}

// Result is the outcome of one Run, independent of how the agent's exit
// code is propagated by the caller.
type Result struct {
	ExitCode   int
	FinalState State
	TornDown   bool
	Teardown   []error // non-fatal teardown failures, logged at warn
}

// Run implements the startup protocol and state machine of spec §4.7/§4.8:
// guaranteed teardown on every path (success, command failure, signal,
// internal error).
func Run(ctx context.Context, opts Options) (Result, error) {
	rt := opts.Runtime
	if rt == nil {
		rt = NewDockerRuntime()
	}

	t := newTracker()
	top := NewTopology(opts.RunID)
	result := Result{FinalState: t.current}

	proxyListenAddr := top.ProxyIP
	const proxyListenPort = 3128

	proxyCfg := BuildProxyConfig(opts.Policy, proxyListenAddr, proxyListenPort)
	rules := CompilePacketFilterRules(opts.Policy, proxyListenAddr, proxyListenPort)

	if opts.KeepContainers {
		if err := writeKeepContainersSnapshot(opts, top, proxyCfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write --keep-containers snapshot: %v\n", err)
		}
	}

	// Step 2: network.
	if err := rt.EnsureNetwork(ctx, top); err != nil {
		t.fail()
		result.FinalState = t.finish()
		return result, err
	}
	t.advance(StateNetworkReady)

	// Step 3: start the proxy and probe readiness with progressive backoff,
	// bounded by proxyReadyBudget (spec §4.7 step 3, §5 "Timeouts").
	t.advance(StateProxyStarting)
	squidConf := proxyCfg.RenderSquidConf()
	allowedDomains := proxyCfg.RenderAllowedDomainsFile()
	if err := rt.StartProxy(ctx, top, proxyCfg, opts.ProxyImage, squidConf, allowedDomains, opts.LogDir); err != nil {
		t.fail()
		teardownEverything(ctx, rt, top, &result, t, opts.KeepContainers)
		return result, err
	}

	if err := waitForProxyReady(ctx, rt, top, proxyCfg); err != nil {
		t.fail()
		teardownEverything(ctx, rt, top, &result, t, opts.KeepContainers)
		return result, startupError(err, "proxy did not become ready within %s", proxyReadyBudget)
	}
	t.advance(StateProxyReady)

	// Step 4: init installs packet-filter rules, gating the agent.
	t.advance(StateRulesInstalling)
	initExit, err := rt.StartInit(ctx, top, rules)
	if err != nil || initExit != 0 {
		t.fail()
		teardownEverything(ctx, rt, top, &result, t, opts.KeepContainers)
		if err == nil {
			err = startupError(nil, "init container exited %d", initExit)
		}
		return result, err
	}
	t.advance(StateRulesInstalled)

	// Step 5: start the agent, sharing init's network namespace.
	t.advance(StateAgentRunning)
	agentSpec := AgentSpec{
		Image:   opts.AgentImage,
		Command: opts.Command,
		Env:     opts.Env,
		Mounts:  toMountArgs(opts.MountPlan),
		User:    opts.MountPlan.User,
		WorkDir: opts.MountPlan.WorkingDir,
		Seccomp: AgentSeccompProfile(),
		TTY:     opts.TTY,
	}

	exitCode, runErr := rt.StartAgent(ctx, top, agentSpec, opts.StdIO)
	t.advance(StateAgentExited)
	result.ExitCode = exitCode

	// Step 6: teardown runs on every path, including this success path.
	teardownEverything(ctx, rt, top, &result, t, opts.KeepContainers)

	if runErr != nil {
		return result, runtimeError(runErr, "agent did not start")
	}
	return result, nil
}

// waitForProxyReady probes readiness on the schedule of spec §5, returning
// the last probe error if the budget is exhausted.
func waitForProxyReady(ctx context.Context, rt Runtime, top Topology, cfg *ProxyConfig) error {
	spin := console.NewSpinner("waiting for proxy readiness")
	spin.Start()
	defer spin.Stop()

	deadline := time.Now().Add(proxyReadyBudget)
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := rt.ProbeProxyReady(ctx, top, cfg); err == nil {
			spin.StopWithMessage(console.FormatAllowedMessage("proxy ready"))
			return nil
		} else {
			lastErr = err
		}

		if time.Now().After(deadline) {
			spin.StopWithMessage(console.FormatDeniedMessage("proxy did not become ready"))
			return lastErr
		}

		delay := proxyReadyBackoff[len(proxyReadyBackoff)-1]
		if attempt < len(proxyReadyBackoff) {
			delay = proxyReadyBackoff[attempt]
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// teardownEverything implements spec §4.7 step 6 and §5 "Cancellation":
// agent, then proxy, then the init namespace holder (already gone if init
// ran to completion with --rm). Failures are collected, not fatal.
//
// When keepContainers is set (the --keep-containers flag, spec §6), the
// three containers and their shared network are left running for
// inspection: only the state machine is finalized. The --keep-containers
// snapshot (awf-containers.yaml) written at the start of Run is what a
// caller uses to find and later clean them up.
func teardownEverything(ctx context.Context, rt Runtime, top Topology, result *Result, t *tracker, keepContainers bool) {
	if keepContainers {
		result.FinalState = t.finish()
		result.TornDown = false
		return
	}

	teardownCtx := context.Background() // teardown must run even if ctx is already canceled

	for _, name := range []string{"gh-aw-firewall-agent", "gh-aw-firewall-proxy", "gh-aw-firewall-init"} {
		if err := rt.StopContainer(teardownCtx, name); err != nil {
			result.Teardown = append(result.Teardown, err)
		}
		if err := rt.RemoveContainer(teardownCtx, name); err != nil {
			result.Teardown = append(result.Teardown, err)
		}
	}
	if err := rt.RemoveNetwork(teardownCtx, top); err != nil {
		result.Teardown = append(result.Teardown, err)
	}

	result.FinalState = t.finish()
	result.TornDown = true
}

func toMountArgs(plan *mount.MountPlan) []MountArg {
	args := make([]MountArg, 0, len(plan.Mounts))
	for _, m := range plan.Mounts {
		args = append(args, MountArg{
			HostPath:      m.HostPath,
			ContainerPath: m.ContainerPath,
			Mode:          string(m.Mode),
			Hide:          m.Hide,
		})
	}
	return args
}
