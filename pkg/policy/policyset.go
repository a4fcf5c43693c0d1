package policy

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// PortRange is an inclusive [Low, High] range of TCP ports.
type PortRange struct {
	Low  int
	High int
}

// PolicySet is an ordered, deduplicated collection of DomainPatterns plus the
// DNS, host-port, and filesystem-access decisions that travel with it (spec §3).
type PolicySet struct {
	Patterns                   []DomainPattern
	DNSServersV4               []net.IP
	DNSServersV6               []net.IP
	HostPortsAllowed           []PortRange
	EnableHostAccess           bool
	EnableFullFilesystemAccess bool

	// Decisions records human-readable notes about implicit choices the
	// builder made (e.g. "localhost keyword forced enableHostAccess=true"),
	// surfaced by the CLI at --log-level debug or info.
	Decisions []string
}

// BuildOptions carries the raw, unvalidated inputs for building a PolicySet.
type BuildOptions struct {
	AllowDomains               []string
	DNSServers                 []string // IP literals; defaults applied if empty
	HostPortsAllowed           string    // "" | "N" | "lo-hi"
	EnableHostAccess           bool
	EnableFullFilesystemAccess bool
}

// Build normalizes raw allow-list entries and flags into a PolicySet,
// implementing the rules of spec §4.5.
func Build(opts BuildOptions) (*PolicySet, error) {
	ps := &PolicySet{
		EnableHostAccess:           opts.EnableHostAccess,
		EnableFullFilesystemAccess: opts.EnableFullFilesystemAccess,
	}

	seen := make(map[string]bool)
	localhostSeen := false
	for _, raw := range opts.AllowDomains {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		pat, ok := newDomainPattern(trimmed)
		if !ok {
			return nil, fmt.Errorf("invalid domain pattern %q: wildcards are only supported as a leading \"*.\"", raw)
		}
		if pat.Kind == KindLocalhost {
			localhostSeen = true
		}
		key := fmt.Sprintf("%d:%s", pat.Kind, pat.Canonical)
		if seen[key] {
			continue
		}
		seen[key] = true
		ps.Patterns = append(ps.Patterns, pat)
	}

	hostPortsExplicit := opts.HostPortsAllowed != ""

	if localhostSeen {
		ps.EnableHostAccess = true
		ps.Decisions = append(ps.Decisions, "localhost keyword present: forcing enableHostAccess=true")
		if !hostPortsExplicit {
			ps.HostPortsAllowed = []PortRange{{Low: constants.DefaultHostPortRangeLow, High: constants.DefaultHostPortRangeHigh}}
			ps.Decisions = append(ps.Decisions, fmt.Sprintf("localhost keyword present: installing default host port range %d-%d", constants.DefaultHostPortRangeLow, constants.DefaultHostPortRangeHigh))
		}
	}

	if hostPortsExplicit {
		pr, err := parsePortRange(opts.HostPortsAllowed)
		if err != nil {
			return nil, err
		}
		ps.HostPortsAllowed = []PortRange{pr}
	}

	dnsServers := opts.DNSServers
	if len(dnsServers) == 0 {
		dnsServers = constants.DefaultDNSServers
	}
	for _, raw := range dnsServers {
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return nil, fmt.Errorf("invalid DNS server IP literal %q", raw)
		}
		if v4 := ip.To4(); v4 != nil {
			ps.DNSServersV4 = append(ps.DNSServersV4, v4)
		} else {
			ps.DNSServersV6 = append(ps.DNSServersV6, ip)
		}
	}

	return ps, nil
}

// parsePortRange parses "N" or "lo-hi" into a validated PortRange (spec §4.5 rule 6).
func parsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PortRange{}, fmt.Errorf("empty port range")
	}

	var lo, hi int
	var err error
	if idx := strings.Index(s, "-"); idx >= 0 {
		lo, err = strconv.Atoi(strings.TrimSpace(s[:idx]))
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
		}
		hi, err = strconv.Atoi(strings.TrimSpace(s[idx+1:]))
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
		}
	} else {
		lo, err = strconv.Atoi(s)
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port %q: %w", s, err)
		}
		hi = lo
	}

	if lo < 1 || hi > 65535 || lo > hi {
		return PortRange{}, fmt.Errorf("port range %d-%d out of bounds (must satisfy 1 <= lo <= hi <= 65535)", lo, hi)
	}
	return PortRange{Low: lo, High: hi}, nil
}

// Matches reports whether any pattern in the set matches host H (spec §4.5 rule 7).
func (ps *PolicySet) Matches(host string) bool {
	for _, p := range ps.Patterns {
		if p.Matches(host) {
			return true
		}
	}
	return false
}

// MatchesHostPort reports whether port is within any of the allowed host-port ranges.
func (ps *PolicySet) MatchesHostPort(port int) bool {
	for _, r := range ps.HostPortsAllowed {
		if port >= r.Low && port <= r.High {
			return true
		}
	}
	return false
}

// SortedCanonicalDomains returns the deduplicated canonical domains in the
// set, sorted, for stable rendering into a proxy ACL or packet-filter rule.
func (ps *PolicySet) SortedCanonicalDomains() []string {
	domains := make([]string, 0, len(ps.Patterns))
	for _, p := range ps.Patterns {
		domains = append(domains, p.Canonical)
	}
	sort.Strings(domains)
	return domains
}
