package sandbox

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// keepContainersSnapshot is what gets written to disk when --keep-containers
// is set, so a user can find and inspect the three containers after the run
// completes without needing to recompute the topology from the run ID.
type keepContainersSnapshot struct {
	RunID       string   `yaml:"runId"`
	Network     string   `yaml:"network"`
	Subnet      string   `yaml:"subnet"`
	ProxyImage  string   `yaml:"proxyImage"`
	AgentImage  string   `yaml:"agentImage"`
	Containers  []string `yaml:"containers"`
	AllowedDoms []string `yaml:"allowedDomains"`
}

// writeKeepContainersSnapshot renders the snapshot as awf-containers.yaml
// inside the preserved log directory (or the working directory if none is
// configured).
func writeKeepContainersSnapshot(opts Options, top Topology, cfg *ProxyConfig) error {
	snap := keepContainersSnapshot{
		RunID:      opts.RunID,
		Network:    top.NetworkName,
		Subnet:     top.Subnet,
		ProxyImage: opts.ProxyImage,
		AgentImage: opts.AgentImage,
		Containers: []string{
			"gh-aw-firewall-proxy",
			"gh-aw-firewall-init",
			"gh-aw-firewall-agent",
		},
		AllowedDoms: cfg.AllowedDomains,
	}

	out, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to render keep-containers snapshot: %w", err)
	}

	dir := opts.LogDir
	if dir == "" {
		dir = "."
	}
	path := dir + "/awf-containers.yaml"
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
