package sandbox

import (
	"fmt"
	"hash/crc32"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// Topology names the three containers and private network of one sandbox
// invocation (spec §4.7 "Container topology").
type Topology struct {
	NetworkName string
	Subnet      string // e.g. "172.30.0.0/24"
	ProxyIP     string
	InitIP      string
	AgentIP     string
}

// NewTopology derives a stable, invocation-scoped subnet and network name
// from runID by hashing it into the subnet's second octet, to avoid
// colliding private bridge networks across concurrent invocations (spec §9
// "exact subnet ... implementation-defined"). EnsureNetwork reuses a network
// that already has this name and otherwise creates it with this subnet; it
// does not itself look for other networks using the subnet.
func NewTopology(runID string) Topology {
	octet := 16 + (int(crc32.ChecksumIEEE([]byte(runID))) % 112) // 16-127, avoiding common ranges
	subnetBase := fmt.Sprintf("172.%d.0", octet)
	return Topology{
		NetworkName: "awf-net-" + runID,
		Subnet:      subnetBase + ".0/24",
		ProxyIP:     subnetBase + ".10",
		InitIP:      subnetBase + ".11",
		AgentIP:     subnetBase + ".11", // agent shares init's network namespace
	}
}

// RenderComposeFile renders a docker-compose document describing the three
// containers, for documentation purposes; the run path does not call it
// (--keep-containers writes awf-containers.yaml instead). The engine itself drives containers directly via the runtime
// interface rather than shelling out to `docker compose`, since it needs
// fine-grained control over the startup ordering (proxy ready, then init
// exit, then agent start) that compose's own dependency model doesn't
// express.
func RenderComposeFile(top Topology, proxyImage, agentImage string, agentCommand []string) string {
	compose := `services:
  ` + constants.ProxyContainerName + `:
    image: ` + proxyImage + `
    container_name: ` + constants.ProxyContainerName + `
    user: "proxy"
    volumes:
      - ./squid.conf:/etc/squid/squid.conf:ro
      - ./allowed_domains.txt:/etc/squid/allowed_domains.txt:ro
      - squid-logs:/var/log/squid
    networks:
      ` + top.NetworkName + `:
        ipv4_address: ` + top.ProxyIP + `

  ` + constants.InitContainerName + `:
    image: ` + proxyImage + `
    container_name: ` + constants.InitContainerName + `
    cap_add:
      - NET_ADMIN
    depends_on:
      ` + constants.ProxyContainerName + `:
        condition: service_healthy
    networks:
      ` + top.NetworkName + `:
        ipv4_address: ` + top.InitIP + `

  ` + constants.AgentContainerName + `:
    image: ` + agentImage + `
    container_name: ` + constants.AgentContainerName + `
    network_mode: "service:` + constants.InitContainerName + `"
    cap_drop:
      - ALL
    depends_on:
      ` + constants.InitContainerName + `:
        condition: service_completed_successfully
`
	if len(agentCommand) > 0 {
		compose += "    command: " + formatYAMLArray(agentCommand) + "\n"
	}

	compose += `
volumes:
  squid-logs:

networks:
  ` + top.NetworkName + `:
    driver: bridge
    ipam:
      config:
        - subnet: ` + top.Subnet + `
`
	return compose
}

// formatYAMLArray renders a string slice as an inline YAML flow sequence.
func formatYAMLArray(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	out := "["
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", item)
	}
	return out + "]"
}
