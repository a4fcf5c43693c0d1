package policy

import (
	"testing"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

func TestBuildEmptyAllowList(t *testing.T) {
	ps, err := Build(BuildOptions{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ps.Patterns) != 0 {
		t.Errorf("expected no patterns, got %d", len(ps.Patterns))
	}
	if ps.Matches("anything.example.com") {
		t.Error("expected empty allow-list to match nothing")
	}
}

func TestBuildDeduplicatesAndTrims(t *testing.T) {
	ps, err := Build(BuildOptions{AllowDomains: []string{" GitHub.com ", "github.com.", "github.com"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ps.Patterns) != 1 {
		t.Fatalf("expected 1 deduplicated pattern, got %d", len(ps.Patterns))
	}
}

func TestBuildRejectsInvalidWildcard(t *testing.T) {
	if _, err := Build(BuildOptions{AllowDomains: []string{"api.*.com"}}); err == nil {
		t.Error("expected error for invalid wildcard position")
	}
}

func TestBuildLocalhostForcesHostAccessAndDefaultPorts(t *testing.T) {
	ps, err := Build(BuildOptions{AllowDomains: []string{"localhost"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !ps.EnableHostAccess {
		t.Error("expected enableHostAccess=true")
	}
	if len(ps.HostPortsAllowed) != 1 || ps.HostPortsAllowed[0].Low != constants.DefaultHostPortRangeLow || ps.HostPortsAllowed[0].High != constants.DefaultHostPortRangeHigh {
		t.Errorf("expected default host port range, got %+v", ps.HostPortsAllowed)
	}
}

func TestBuildLocalhostRespectsExplicitHostPorts(t *testing.T) {
	ps, err := Build(BuildOptions{AllowDomains: []string{"localhost"}, HostPortsAllowed: "9000-9100"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ps.HostPortsAllowed) != 1 || ps.HostPortsAllowed[0].Low != 9000 || ps.HostPortsAllowed[0].High != 9100 {
		t.Errorf("expected explicit host port range preserved, got %+v", ps.HostPortsAllowed)
	}
}

func TestBuildDefaultDNSServers(t *testing.T) {
	ps, err := Build(BuildOptions{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ps.DNSServersV4) != len(constants.DefaultDNSServers) {
		t.Errorf("expected %d default DNS servers, got %d", len(constants.DefaultDNSServers), len(ps.DNSServersV4))
	}
}

func TestBuildSeparatesDNSServerFamilies(t *testing.T) {
	ps, err := Build(BuildOptions{DNSServers: []string{"8.8.8.8", "2001:4860:4860::8888"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ps.DNSServersV4) != 1 {
		t.Errorf("expected 1 IPv4 DNS server, got %d", len(ps.DNSServersV4))
	}
	if len(ps.DNSServersV6) != 1 {
		t.Errorf("expected 1 IPv6 DNS server, got %d", len(ps.DNSServersV6))
	}
}

func TestBuildRejectsInvalidDNSLiteral(t *testing.T) {
	if _, err := Build(BuildOptions{DNSServers: []string{"not-an-ip"}}); err == nil {
		t.Error("expected error for invalid DNS server literal")
	}
}

func TestParsePortRangeValidation(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"80", false},
		{"3000-10000", false},
		{"0-100", true},
		{"100-50", true},
		{"1-70000", true},
		{"abc", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := parsePortRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePortRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestMatchesInvariantUnderCaseAndTrailingDot(t *testing.T) {
	ps, err := Build(BuildOptions{AllowDomains: []string{"github.com"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	for _, host := range []string{"github.com", "GITHUB.COM", "github.com.", "api.github.com"} {
		if !ps.Matches(host) {
			t.Errorf("expected match for host %q", host)
		}
	}
	if ps.Matches("github.com.evil.com") {
		t.Error("unexpected match for suffix-attack host")
	}
}

func TestMatchesHostPort(t *testing.T) {
	ps := &PolicySet{HostPortsAllowed: []PortRange{{Low: 3000, High: 3100}, {Low: 9000, High: 9000}}}
	if !ps.MatchesHostPort(3050) {
		t.Error("expected 3050 to match")
	}
	if !ps.MatchesHostPort(9000) {
		t.Error("expected 9000 to match")
	}
	if ps.MatchesHostPort(4000) {
		t.Error("expected 4000 not to match")
	}
}
