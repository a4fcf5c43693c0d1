package firewalllog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/console"
)

// Format selects a renderer for the log streamer and the stats/summary commands.
type Format string

const (
	FormatRaw      Format = "raw"
	FormatPretty   Format = "pretty"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// PrettyOptions configures the pretty renderer (spec §4.3).
type PrettyOptions struct {
	// Color set to false turns ANSI coloring off. Nil or true renders through
	// console's styled helpers, which color only when stdout is a terminal;
	// true does not force coloring when stdout is not a terminal.
	Color *bool
}

var portSuffixRE = regexp.MustCompile(`:(\d+)$`)

// displayURL suppresses :443 for CONNECT requests and :80 for plain HTTP
// requests, per spec §4.3: a port at the end of the URL, or for HTTP the
// port on the host of an absolute URL.
func displayURL(r *Record) string {
	if !r.IsHTTPS {
		if u, err := url.Parse(r.URL); err == nil && u.Port() == "80" {
			return strings.Replace(r.URL, u.Host, strings.TrimSuffix(u.Host, ":80"), 1)
		}
	}
	m := portSuffixRE.FindStringSubmatch(r.URL)
	if m == nil {
		return r.URL
	}
	if r.IsHTTPS && m[1] == "443" {
		return strings.TrimSuffix(r.URL, ":443")
	}
	if !r.IsHTTPS && m[1] == "80" {
		return strings.TrimSuffix(r.URL, ":80")
	}
	return r.URL
}

// RenderRaw passes the record's raw line through, appending a trailing
// newline if absent (spec §4.3).
func RenderRaw(line string) string {
	if strings.HasSuffix(line, "\n") {
		return line
	}
	return line + "\n"
}

// RenderPretty renders one human-readable line per record.
func RenderPretty(r *Record, opts PrettyOptions) string {
	color := opts.Color == nil || *opts.Color
	line := fmt.Sprintf("%s %s %d %s", r.Method, displayURL(r), r.StatusCode, r.Decision)
	if !color {
		if r.IsAllowed {
			return "ALLOW " + line
		}
		return "DENY  " + line
	}
	if r.IsAllowed {
		return console.FormatAllowedMessage(line)
	}
	return console.FormatDeniedMessage(line)
}

// jsonRecord is the NDJSON wire shape for one record.
type jsonRecord struct {
	Timestamp  float64 `json:"timestamp"`
	ClientAddr string  `json:"clientAddr"`
	Host       string  `json:"host"`
	DestAddr   string  `json:"destAddr"`
	Method     string  `json:"method"`
	StatusCode int     `json:"statusCode"`
	Decision   string  `json:"decision"`
	URL        string  `json:"url"`
	UserAgent  string  `json:"userAgent"`
	Domain     string  `json:"domain"`
	IsAllowed  bool    `json:"isAllowed"`
	IsHTTPS    bool    `json:"isHttps"`
}

// RenderJSON renders one record as a single NDJSON line, including the "-"
// sentinel domain (spec §4.3: JSON includes it, Markdown excludes it).
func RenderJSON(r *Record) (string, error) {
	domain := r.Domain
	if domain == "" {
		domain = domainSentinel
	}
	out, err := json.Marshal(jsonRecord{
		Timestamp:  r.Timestamp,
		ClientAddr: r.ClientAddr,
		Host:       r.Host,
		DestAddr:   r.DestAddr,
		Method:     r.Method,
		StatusCode: r.StatusCode,
		Decision:   r.Decision,
		URL:        r.URL,
		UserAgent:  r.UserAgent,
		Domain:     domain,
		IsAllowed:  r.IsAllowed,
		IsHTTPS:    r.IsHTTPS,
	})
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// RenderMarkdown renders an AggregatedStats summary as a single <details>
// block with a table of domains sorted by total descending, excluding the
// "-" sentinel (spec §4.3).
func RenderMarkdown(stats *AggregatedStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<details>\n<summary>%s, %s allowed, %s denied</summary>\n\n",
		plural(stats.TotalRequests, "request"),
		plural(stats.AllowedRequests, "request"),
		plural(stats.DeniedRequests, "request"))

	domains := stats.sortedDomainsByTotalDesc(true)
	if len(domains) > 0 {
		b.WriteString("| Domain | Allowed | Denied | Total |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, d := range domains {
			c := stats.ByDomain[d]
			fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", d, c.Allowed, c.Denied, c.Total)
		}
	}

	b.WriteString("\n</details>\n")
	return b.String()
}
