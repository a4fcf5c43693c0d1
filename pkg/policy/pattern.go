// Package policy normalizes a user-supplied domain allow-list into a
// matchable, deduplicated PolicySet, and validates the DNS-server and
// host-port-range inputs that travel alongside it.
package policy

import "strings"

// Kind classifies how a DomainPattern matches a host.
type Kind int

const (
	// KindExact matches a host equal to, or a subdomain of, the canonical form.
	KindExact Kind = iota
	// KindWildcardLeading matches any subdomain of the canonical form, but not
	// the canonical form itself.
	KindWildcardLeading
	// KindLocalhost is the rewritten form of the "localhost" keyword.
	KindLocalhost
)

// DomainPattern is the normalized form of one allow-list entry (spec §3).
type DomainPattern struct {
	Original     string
	Canonical    string
	Kind         Kind
	ProtocolHint string // "", "http", or "https"
}

// canonicalize lowercases, trims whitespace, and removes a single trailing dot.
func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = strings.TrimSuffix(s, ".")
	return s
}

// newDomainPattern builds a DomainPattern from one trimmed, lowercased entry.
// It returns ok=false for entries that canonicalize to empty or that use a
// wildcard in any position other than a single leading "*.".
func newDomainPattern(original string) (DomainPattern, bool) {
	trimmed := strings.TrimSpace(original)
	if trimmed == "" {
		return DomainPattern{}, false
	}

	if isLocalhostEntry(trimmed) {
		return DomainPattern{
			Original:  original,
			Canonical: localhostHostGateway,
			Kind:      KindLocalhost,
		}, true
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "*") {
		if !strings.HasPrefix(lower, "*.") {
			return DomainPattern{}, false
		}
		if strings.Count(lower, "*") > 1 {
			return DomainPattern{}, false
		}
		canonical := canonicalize(lower[2:])
		if canonical == "" {
			return DomainPattern{}, false
		}
		return DomainPattern{
			Original:  original,
			Canonical: canonical,
			Kind:      KindWildcardLeading,
		}, true
	}

	canonical := canonicalize(lower)
	if canonical == "" {
		return DomainPattern{}, false
	}
	return DomainPattern{
		Original:  original,
		Canonical: canonical,
		Kind:      KindExact,
	}, true
}

// localhostHostGateway is the host-gateway name the localhost keyword rewrites to.
const localhostHostGateway = "host.docker.internal"

// isLocalhostEntry reports whether an allow-list entry is the localhost
// keyword, optionally prefixed with an http(s) scheme, in any case.
func isLocalhostEntry(entry string) bool {
	lower := strings.ToLower(strings.TrimSpace(entry))
	lower = strings.TrimPrefix(lower, "https://")
	lower = strings.TrimPrefix(lower, "http://")
	lower = strings.TrimSuffix(lower, "/")
	return lower == "localhost"
}

// Matches reports whether the pattern matches host H, per spec §3: matching
// is case-insensitive and dot-trailing-insensitive by construction (both
// sides are canonicalized before comparison).
func (p DomainPattern) Matches(host string) bool {
	h := canonicalize(host)
	if h == "" {
		return false
	}

	switch p.Kind {
	case KindWildcardLeading:
		return strings.HasSuffix(h, "."+p.Canonical)
	case KindExact, KindLocalhost:
		return h == p.Canonical || strings.HasSuffix(h, "."+p.Canonical)
	default:
		return false
	}
}
