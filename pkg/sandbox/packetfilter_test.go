package sandbox

import (
	"strings"
	"testing"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
)

func TestCompilePacketFilterRulesRedirectsAndDenies(t *testing.T) {
	ps, err := policy.Build(policy.BuildOptions{AllowDomains: []string{"github.com"}, DNSServers: []string{"8.8.8.8"}})
	if err != nil {
		t.Fatalf("policy.Build error: %v", err)
	}

	rules := CompilePacketFilterRules(ps, "172.30.0.10", 3128)
	if len(rules.IPv4) == 0 {
		t.Fatal("expected non-empty IPv4 rule set")
	}
	if rules.IPv6 != nil {
		t.Error("expected nil IPv6 rule set when no IPv6 DNS servers are configured")
	}

	var sawNATRedirect, sawDNSAllow, sawEstablished, sawDrop bool
	for _, r := range rules.IPv4 {
		joined := strings.Join(r.Args, " ")
		if r.Table == "nat" && strings.Contains(joined, "DNAT") {
			sawNATRedirect = true
		}
		if strings.Contains(joined, "8.8.8.8") && strings.Contains(joined, "53") {
			sawDNSAllow = true
		}
		if strings.Contains(joined, "ESTABLISHED,RELATED") {
			sawEstablished = true
		}
		if joined == "-j DROP" {
			sawDrop = true
		}
	}
	if !sawNATRedirect {
		t.Error("expected a NAT redirect rule")
	}
	if !sawDNSAllow {
		t.Error("expected a DNS allow rule for the configured resolver")
	}
	if !sawEstablished {
		t.Error("expected an established/related allow rule")
	}
	if !sawDrop {
		t.Error("expected a terminal drop rule")
	}
	// The drop rule must be last so nothing after it is unreachable.
	if rules.IPv4[len(rules.IPv4)-1].Args[len(rules.IPv4[len(rules.IPv4)-1].Args)-1] != "DROP" {
		t.Error("expected the drop rule to be last")
	}
}

func TestCompilePacketFilterRulesBuildsIPv6SiblingWhenDNSPresent(t *testing.T) {
	ps, err := policy.Build(policy.BuildOptions{AllowDomains: []string{"github.com"}, DNSServers: []string{"2001:4860:4860::8888"}})
	if err != nil {
		t.Fatalf("policy.Build error: %v", err)
	}

	rules := CompilePacketFilterRules(ps, "fd00::10", 3128)
	if len(rules.IPv6) == 0 {
		t.Fatal("expected IPv6 rules when an IPv6 DNS server is configured")
	}
	for _, r := range rules.IPv6 {
		if strings.Contains(strings.Join(r.Args, " "), "icmpv6") {
			return
		}
	}
	t.Error("expected an icmpv6 allow rule in the IPv6 sibling chain")
}

func TestRenderCommandsUsesDistinctBinaries(t *testing.T) {
	ps, err := policy.Build(policy.BuildOptions{
		AllowDomains: []string{"github.com"},
		DNSServers:   []string{"8.8.8.8", "2001:4860:4860::8888"},
	})
	if err != nil {
		t.Fatalf("policy.Build error: %v", err)
	}
	rules := CompilePacketFilterRules(ps, "172.30.0.10", 3128)
	ipv4Cmds, ipv6Cmds := rules.RenderCommands()

	for _, c := range ipv4Cmds {
		if !strings.HasPrefix(c, "iptables ") {
			t.Errorf("expected iptables command, got %q", c)
		}
	}
	for _, c := range ipv6Cmds {
		if !strings.HasPrefix(c, "ip6tables ") {
			t.Errorf("expected ip6tables command, got %q", c)
		}
	}
}
