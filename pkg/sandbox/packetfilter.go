package sandbox

import (
	"fmt"
	"net"
	"strings"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
)

// Rule is one rendered iptables/ip6tables line, scoped to a single table and
// chain. It is data, not syntax: the renderer (renderFamily) turns it into the
// concrete `-A ...` invocation.
type Rule struct {
	Table   string // "nat" or "filter"
	Chain   string
	Args    []string
	Comment string
}

// PacketFilterRules is the deterministic output of the rule compiler for a
// given PolicySet (spec §3). IPv4 and IPv6 are modeled as sibling value
// sequences, never a subclass relationship (spec §9 "Packet-filter family
// split"): IPv6 is only populated, and only applied, when the policy has at
// least one IPv6 DNS server.
type PacketFilterRules struct {
	IPv4 []Rule
	IPv6 []Rule
}

const (
	natRedirectChain = "AWF_OUTPUT_NAT"
	filterAllowChain = "AWF_OUTPUT_FILTER"
)

// CompilePacketFilterRules builds the OUTPUT-NAT-redirect and
// OUTPUT-FILTER-allow chains described in spec §3: redirect locally
// originated TCP/80 and TCP/443 to the proxy listener, permit DNS only to
// the configured servers, permit the proxy listener and ICMP/established
// traffic, and drop everything else.
func CompilePacketFilterRules(ps *policy.PolicySet, proxyListenAddr string, proxyPort int) *PacketFilterRules {
	return &PacketFilterRules{
		IPv4: compileFamily(ps.DNSServersV4, proxyListenAddr, proxyPort, false),
		IPv6: compileFamily(ps.DNSServersV6, proxyListenAddr, proxyPort, true),
	}
}

func compileFamily(dnsServers []net.IP, proxyListenAddr string, proxyPort int, v6 bool) []Rule {
	if v6 && len(dnsServers) == 0 {
		// Absence of IPv6 DNS servers means no IPv6 egress is permitted by
		// policy; skip building (and therefore applying) the sibling chain
		// rather than emitting a family with nothing to allow.
		return nil
	}

	var rules []Rule

	for _, port := range []int{80, 443} {
		rules = append(rules, Rule{
			Table: "nat",
			Chain: natRedirectChain,
			Args: []string{
				"-p", "tcp", "--dport", fmt.Sprintf("%d", port),
				"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", proxyListenAddr, proxyPort),
			},
			Comment: fmt.Sprintf("redirect outbound TCP/%d to the proxy listener", port),
		})
	}

	for _, dns := range dnsServers {
		dnsLit := dns.String()
		rules = append(rules, Rule{
			Table:   "filter",
			Chain:   filterAllowChain,
			Args:    []string{"-p", "udp", "-d", dnsLit, "--dport", "53", "-j", "ACCEPT"},
			Comment: "permit DNS to a configured resolver",
		})
		rules = append(rules, Rule{
			Table:   "filter",
			Chain:   filterAllowChain,
			Args:    []string{"-p", "tcp", "-d", dnsLit, "--dport", "53", "-j", "ACCEPT"},
			Comment: "permit DNS (TCP fallback) to a configured resolver",
		})
	}

	rules = append(rules,
		Rule{
			Table:   "filter",
			Chain:   filterAllowChain,
			Args:    []string{"-d", proxyListenAddr, "-p", "tcp", "--dport", fmt.Sprintf("%d", proxyPort), "-j", "ACCEPT"},
			Comment: "permit traffic to the proxy listener",
		},
		Rule{
			Table:   "filter",
			Chain:   filterAllowChain,
			Args:    []string{"-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"},
			Comment: "permit established/related connections",
		},
	)

	icmpProto := "icmp"
	if v6 {
		icmpProto = "icmpv6"
	}
	rules = append(rules, Rule{
		Table:   "filter",
		Chain:   filterAllowChain,
		Args:    []string{"-p", icmpProto, "-j", "ACCEPT"},
		Comment: "permit ICMP error returns",
	})

	rules = append(rules, Rule{
		Table:   "filter",
		Chain:   filterAllowChain,
		Args:    []string{"-j", "DROP"},
		Comment: "deny everything else",
	})

	return rules
}

// binaryFor returns "iptables" or "ip6tables" for a rule set.
func binaryFor(v6 bool) string {
	if v6 {
		return "ip6tables"
	}
	return "iptables"
}

// RenderCommands renders each family's rules as the literal argv that would
// be passed to the container runtime's exec facility, in application order:
// nat table first (so redirects are in place before the filter chain can
// drop anything), then filter.
func (p *PacketFilterRules) RenderCommands() (ipv4, ipv6 []string) {
	return renderFamily(p.IPv4, false), renderFamily(p.IPv6, true)
}

func renderFamily(rules []Rule, v6 bool) []string {
	if len(rules) == 0 {
		return nil
	}
	bin := binaryFor(v6)
	chains := map[string]bool{}
	var lines []string

	for _, r := range rules {
		key := r.Table + "/" + r.Chain
		if !chains[key] {
			lines = append(lines, fmt.Sprintf("%s -t %s -N %s", bin, r.Table, r.Chain))
			lines = append(lines, fmt.Sprintf("%s -t %s -A OUTPUT -j %s", bin, r.Table, r.Chain))
			chains[key] = true
		}
	}

	for _, r := range rules {
		args := append([]string{bin, "-t", r.Table, "-A", r.Chain}, r.Args...)
		lines = append(lines, strings.Join(args, " "))
	}

	return lines
}
