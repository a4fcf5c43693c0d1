// Package testutil holds test helpers for pkg/sandbox's tests: a fake
// container Runtime in the teacher's own table-driven, no-testify style.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/sandbox"
)

// Call records one invocation against the FakeRuntime, in call order, so a
// test can assert both outcome and sequencing (spec §4.7 "strict order").
type Call struct {
	Name string
	Args []string
}

// FakeRuntime is an in-memory sandbox.Runtime double: every method appends
// to Calls and returns whatever the corresponding *Err/*ExitCode field says,
// so a test can drive every branch of Run's startup protocol without a
// container runtime present.
type FakeRuntime struct {
	mu    sync.Mutex
	Calls []Call

	EnsureNetworkErr error
	RemoveNetworkErr error

	StartProxyErr      error
	ProbeProxyReadyErr error
	// ProbeFailuresBeforeReady makes ProbeProxyReady fail this many times
	// before succeeding, to exercise the readiness backoff loop.
	ProbeFailuresBeforeReady int
	probeCount               int

	StartInitExitCode int
	StartInitErr      error

	StartAgentExitCode int
	StartAgentErr      error

	StopContainerErr   error
	RemoveContainerErr error
}

var _ sandbox.Runtime = (*FakeRuntime)(nil)

func (f *FakeRuntime) record(name string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Name: name, Args: args})
}

func (f *FakeRuntime) EnsureNetwork(ctx context.Context, top sandbox.Topology) error {
	f.record("EnsureNetwork", top.NetworkName)
	return f.EnsureNetworkErr
}

func (f *FakeRuntime) RemoveNetwork(ctx context.Context, top sandbox.Topology) error {
	f.record("RemoveNetwork", top.NetworkName)
	return f.RemoveNetworkErr
}

func (f *FakeRuntime) StartProxy(ctx context.Context, top sandbox.Topology, cfg *sandbox.ProxyConfig, proxyImage, squidConf, allowedDomains, logDir string) error {
	f.record("StartProxy")
	return f.StartProxyErr
}

func (f *FakeRuntime) ProbeProxyReady(ctx context.Context, top sandbox.Topology, cfg *sandbox.ProxyConfig) error {
	f.mu.Lock()
	f.probeCount++
	count := f.probeCount
	f.mu.Unlock()
	f.record("ProbeProxyReady")
	if f.ProbeProxyReadyErr != nil {
		return f.ProbeProxyReadyErr
	}
	if count <= f.ProbeFailuresBeforeReady {
		return fmt.Errorf("proxy not yet listening (attempt %d)", count)
	}
	return nil
}

func (f *FakeRuntime) StartInit(ctx context.Context, top sandbox.Topology, rules *sandbox.PacketFilterRules) (int, error) {
	f.record("StartInit")
	return f.StartInitExitCode, f.StartInitErr
}

func (f *FakeRuntime) StartAgent(ctx context.Context, top sandbox.Topology, spec sandbox.AgentSpec, stdio sandbox.StdIO) (int, error) {
	f.record("StartAgent", spec.Command...)
	return f.StartAgentExitCode, f.StartAgentErr
}

func (f *FakeRuntime) StopContainer(ctx context.Context, name string) error {
	f.record("StopContainer", name)
	return f.StopContainerErr
}

func (f *FakeRuntime) RemoveContainer(ctx context.Context, name string) error {
	f.record("RemoveContainer", name)
	return f.RemoveContainerErr
}

// Sequence returns the recorded call names in order, for assertions like
// "proxy started before init, init before agent" (spec §5 "Ordering guarantees").
func (f *FakeRuntime) Sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		names[i] = c.Name
	}
	return names
}
