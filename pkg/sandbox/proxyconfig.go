package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
)

// ProxyConfig is the filtering CONNECT proxy's runtime configuration,
// derived from a PolicySet (spec §3 ProxyConfig).
type ProxyConfig struct {
	AllowedDomains   []string
	ListenAddr       string
	ListenPort       int
	AccessLogPath    string
	HostGateway      string
	HostPorts        []policy.PortRange
	EnableHostAccess bool
}

// BuildProxyConfig derives a ProxyConfig from a PolicySet.
func BuildProxyConfig(ps *policy.PolicySet, listenAddr string, listenPort int) *ProxyConfig {
	// Wildcard patterns keep a "*." prefix so RenderAllowedDomainsFile can
	// render them in the proxy's subdomain syntax.
	domains := make([]string, 0, len(ps.Patterns))
	for _, p := range ps.Patterns {
		if p.Kind == policy.KindWildcardLeading {
			domains = append(domains, "*."+p.Canonical)
		} else {
			domains = append(domains, p.Canonical)
		}
	}
	sort.Strings(domains)
	return &ProxyConfig{
		AllowedDomains:   domains,
		ListenAddr:       listenAddr,
		ListenPort:       listenPort,
		AccessLogPath:    constants.ProxyAccessLogPath,
		HostGateway:      constants.HostGatewayName,
		HostPorts:        ps.HostPortsAllowed,
		EnableHostAccess: ps.EnableHostAccess,
	}
}

// RenderAllowedDomainsFile renders the dstdomain ACL source file consumed by
// squid's acl directive, one pattern per line in the proxy's native syntax:
// a leading "." denotes a wildcarded subdomain match.
func (c *ProxyConfig) RenderAllowedDomainsFile() string {
	var b strings.Builder
	b.WriteString("# Allowed domains for egress traffic\n")
	for _, d := range c.AllowedDomains {
		if strings.HasPrefix(d, "*.") {
			fmt.Fprintf(&b, ".%s\n", strings.TrimPrefix(d, "*."))
		} else {
			fmt.Fprintf(&b, "%s\n", d)
		}
	}
	if c.EnableHostAccess {
		fmt.Fprintf(&b, "%s\n", c.HostGateway)
	}
	return b.String()
}

// RenderSquidConf renders the proxy's squid.conf, implementing the ACL
// invariant of spec §3: CONNECT is permitted iff the target host matches a
// DomainPattern and the target port is in {80, 443}, or the target is
// host.docker.internal on a port in hostPortsAllowed.
func (c *ProxyConfig) RenderSquidConf() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# egress firewall proxy configuration\n\n")
	fmt.Fprintf(&b, "cache deny all\n\n")
	fmt.Fprintf(&b, "http_port %s:%d\n\n", c.ListenAddr, c.ListenPort)

	b.WriteString("acl allowed_domains dstdomain \"/etc/squid/allowed_domains.txt\"\n")
	b.WriteString("acl SSL_ports port 443\n")
	b.WriteString("acl Safe_ports port 80\n")
	b.WriteString("acl Safe_ports port 443\n")
	b.WriteString("acl CONNECT method CONNECT\n")

	if c.EnableHostAccess && len(c.HostPorts) > 0 {
		b.WriteString("acl host_gateway dstdomain " + c.HostGateway + "\n")
		for _, r := range c.HostPorts {
			fmt.Fprintf(&b, "acl host_ports port %d-%d\n", r.Low, r.High)
		}
	}

	b.WriteString("\n")
	if c.EnableHostAccess && len(c.HostPorts) > 0 {
		b.WriteString("http_access allow host_gateway host_ports\n")
	}
	b.WriteString("http_access deny !Safe_ports\n")
	b.WriteString("http_access deny CONNECT !SSL_ports\n")
	b.WriteString("http_access allow allowed_domains\n")
	b.WriteString("http_access deny all\n\n")

	b.WriteString("forwarded_for delete\n")
	b.WriteString("via off\n\n")

	b.WriteString("logformat awf %ts.%03tu %>a:%>p %{Host}>h %<a:%<p %rv %rm %>Hs %Ss:%Sh %ru \"%{User-Agent}>h\"\n")
	fmt.Fprintf(&b, "access_log %s awf\n", c.AccessLogPath)

	return b.String()
}
