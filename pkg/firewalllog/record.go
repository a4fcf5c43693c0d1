// Package firewalllog implements the proxy access-log parser, discovery,
// aggregation/formatting, and streaming components (spec §4.1-§4.4).
package firewalllog

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strconv"
	"strings"
)

// Record is one parsed proxy access-log line (spec §3 AccessLogRecord).
type Record struct {
	Timestamp       float64
	ClientAddr      string
	Host            string
	DestAddr        string
	ProtocolVersion string
	Method          string
	StatusCode      int
	Decision        string
	URL             string
	UserAgent       string

	// Derived fields.
	Domain    string
	IsAllowed bool
	IsHTTPS   bool

	// Raw is the original line, retained so callers can fall back to it.
	Raw string
}

var trailingPortRE = regexp.MustCompile(`:\d+$`)

// ParseLine parses a single access-log line of the form described in spec §4.1:
//
//	<ts.ms> <clientIp>:<port> <host> <destIp>:<destPort> <proto> <method> <status> <decision> <url> "<userAgent>"
//
// Blank input returns nil. Any malformed line (wrong field count,
// unquoted user agent, unparseable timestamp or status) returns nil:
// parse failures are never fatal (spec §4.1, §7 LogError).
func ParseLine(line string) *Record {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	// Split into exactly 10 fields; the 10th absorbs the remainder so a
	// quoted user agent containing spaces survives intact.
	fields := strings.SplitN(trimmed, " ", 10)
	if len(fields) != 10 {
		return nil
	}

	uaField := fields[9]
	if len(uaField) < 2 || !strings.HasPrefix(uaField, `"`) || !strings.HasSuffix(uaField, `"`) {
		return nil
	}
	userAgent := uaField[1 : len(uaField)-1]

	ts, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}

	status, err := strconv.Atoi(fields[6])
	if err != nil {
		return nil
	}

	method := fields[5]
	decision := fields[7]
	url := fields[8]
	host := fields[2]

	rec := &Record{
		Timestamp:       ts,
		ClientAddr:      fields[1],
		Host:            host,
		DestAddr:        fields[3],
		ProtocolVersion: fields[4],
		Method:          method,
		StatusCode:      status,
		Decision:        decision,
		URL:             url,
		UserAgent:       userAgent,
		Raw:             trimmed,
	}

	rec.IsHTTPS = method == "CONNECT"
	rec.IsAllowed = strings.HasPrefix(decision, "TCP_TUNNEL") || strings.HasPrefix(decision, "TCP_MISS")
	rec.Domain = deriveDomain(rec)

	return rec
}

// deriveDomain implements spec §4.1(c): for CONNECT, strip a trailing port
// from URL; otherwise prefer Host (also port-stripped); failing both, try a
// URL parse (defaulting to http://), falling back to the raw URL string.
func deriveDomain(rec *Record) string {
	if rec.IsHTTPS {
		return trailingPortRE.ReplaceAllString(rec.URL, "")
	}

	if rec.Host != "" {
		return trailingPortRE.ReplaceAllString(rec.Host, "")
	}

	candidate := rec.URL
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	parsed, err := neturl.Parse(candidate)
	if err != nil || parsed.Hostname() == "" {
		return rec.URL
	}
	return parsed.Hostname()
}

// String renders the record back into raw-log form, used when a renderer
// needs raw output for a record that was already parsed.
func (r *Record) String() string {
	return fmt.Sprintf(`%.3f %s %s %s %s %s %d %s %s "%s"`,
		r.Timestamp, r.ClientAddr, r.Host, r.DestAddr, r.ProtocolVersion,
		r.Method, r.StatusCode, r.Decision, r.URL, r.UserAgent)
}
