package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gh "github.com/cli/go-gh/v2"
	"github.com/spf13/cobra"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/console"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/firewalllog"
)

// NewLogsCommand builds the "logs" command tree (spec §4.1-§4.4, §6):
// "logs [source]", "logs stats [format]", "logs summary", and the
// SPEC_FULL.md supplement "logs fetch <run-id>".
func NewLogsCommand() *cobra.Command {
	var follow, parse bool
	var format string

	logsCmd := &cobra.Command{
		Use:   "logs [source]",
		Short: "Stream the proxy's access log",
		Long: `Stream parsed or raw access-log records from a running sandbox or a
preserved log directory (spec §4.2, §4.4).

source is the literal "running", a directory containing access.log, or
omitted to auto-select the most recent available source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := resolveSource(cmd.Context(), args)
			if err != nil {
				return err
			}
			return firewalllog.Stream(cmd.Context(), *source, os.Stdout, firewalllog.StreamOptions{
				Follow: follow,
				Parse:  parse,
				Format: firewalllog.Format(format),
			})
		},
	}
	logsCmd.Flags().BoolVar(&follow, "follow", false, "tail the log continuously instead of reading it once")
	logsCmd.Flags().BoolVar(&parse, "parse", true, "parse records before rendering (disable for raw passthrough)")
	logsCmd.Flags().StringVar(&format, "format", "pretty", "raw|pretty|json")

	logsCmd.AddCommand(newLogsListCommand())
	logsCmd.AddCommand(newLogsStatsCommand())
	logsCmd.AddCommand(newLogsSummaryCommand())
	logsCmd.AddCommand(newLogsFetchCommand())

	return logsCmd
}

// resolveSource validates an explicit source argument or auto-selects the
// most recent discovered source (spec §4.2).
func resolveSource(ctx context.Context, args []string) (*firewalllog.LogSource, error) {
	if len(args) == 1 {
		return firewalllog.ValidateUserSource(ctx, args[0])
	}
	sources, err := firewalllog.EnumerateSources(ctx)
	if err != nil {
		return nil, err
	}
	source := firewalllog.SelectMostRecent(sources)
	if source == nil {
		return nil, fmt.Errorf("no log sources found (set %s to point at a preserved log directory)", constants.EnvLogsDir)
	}
	return source, nil
}

func newLogsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered log sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := firewalllog.EnumerateSources(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(firewalllog.ListFormatted(sources))
			return nil
		},
	}
}

func newLogsStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [format]",
		Short: "Aggregate the access log into per-domain counts and a time range",
		Long:  `format is one of json|markdown|pretty (default pretty) (spec §4.3).`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := "pretty"
			if len(args) == 1 {
				format = args[0]
			}

			source, err := resolveSource(cmd.Context(), nil)
			if err != nil {
				return err
			}
			records, err := readAllRecords(cmd.Context(), *source)
			if err != nil {
				return err
			}
			stats := firewalllog.Aggregate(records)

			switch format {
			case "json":
				return printStatsJSON(stats)
			case "markdown":
				fmt.Print(firewalllog.RenderMarkdown(stats))
				return nil
			default:
				printStatsPretty(stats)
				return nil
			}
		},
	}
}

func newLogsSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print a one-line summary of the access log",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := resolveSource(cmd.Context(), nil)
			if err != nil {
				return err
			}
			records, err := readAllRecords(cmd.Context(), *source)
			if err != nil {
				return err
			}
			stats := firewalllog.Aggregate(records)
			fmt.Printf("%d requests, %d allowed, %d denied, %d unique domains\n",
				stats.TotalRequests, stats.AllowedRequests, stats.DeniedRequests, stats.UniqueDomains())
			return nil
		},
	}
}

func newLogsFetchCommand() *cobra.Command {
	var artifactName string

	cmd := &cobra.Command{
		Use:   "fetch <run-id>",
		Short: "Download a workflow run's firewall-log artifact and register it as a preserved source",
		Long: `Downloads the named artifact from a GitHub Actions run via the gh CLI,
unpacks it into a squid-logs-<ms> directory recognized by log discovery
(SPEC_FULL.md "Supplemented features").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := fetchRunArtifact(args[0], artifactName)
			if err != nil {
				return err
			}
			fmt.Println(console.FormatSuccessMessage("downloaded firewall log artifact to " + dir))
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactName, "artifact-name", "firewall-logs", "name of the run artifact holding the preserved access log")
	return cmd
}

// fetchRunArtifact shells out to `gh run download`, grounded in the
// teacher's own gh.Exec-based artifact/repo download flow
// (pkg/cli/commands.go downloadWorkflows), adapted to firewall-log artifacts
// specifically.
func fetchRunArtifact(runID, artifactName string) (string, error) {
	dir := fmt.Sprintf("%s/%s%d", os.TempDir(), constants.PreservedLogDirPrefix, time.Now().UnixMilli())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	args := []string{"run", "download", runID, "-n", artifactName, "-D", dir}
	_, stderr, err := gh.Exec(args...)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact %q from run %s: %w (stderr: %s)", artifactName, runID, err, stderr.String())
	}

	if _, statErr := os.Stat(filepath.Join(dir, "access.log")); statErr != nil {
		return "", fmt.Errorf("downloaded artifact %q did not contain access.log", artifactName)
	}
	return dir, nil
}

// readAllRecords drains a source once (follow=false) into a parsed-record
// slice for the aggregator, which needs the finite stream spec §4.3
// describes rather than the streamer's line-at-a-time writer interface.
func readAllRecords(ctx context.Context, source firewalllog.LogSource) ([]*firewalllog.Record, error) {
	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- firewalllog.Stream(ctx, source, w, firewalllog.StreamOptions{Format: firewalllog.FormatRaw, Parse: false})
		w.Close()
	}()

	var records []*firewalllog.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if rec := firewalllog.ParseLine(scanner.Text()); rec != nil {
			records = append(records, rec)
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return records, scanner.Err()
}

func printStatsPretty(stats *firewalllog.AggregatedStats) {
	title := fmt.Sprintf("%d requests (%d allowed, %d denied) across %d domains",
		stats.TotalRequests, stats.AllowedRequests, stats.DeniedRequests, stats.UniqueDomains())
	if stats.TimeRange != nil {
		title += fmt.Sprintf(", %.3f - %.3f", stats.TimeRange.Start, stats.TimeRange.End)
	}

	type row struct {
		domain string
		total  int
	}
	rows := make([]row, 0, len(stats.ByDomain))
	for d, c := range stats.ByDomain {
		rows = append(rows, row{d, c.Total})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].total > rows[j].total })

	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		c := stats.ByDomain[r.domain]
		tableRows = append(tableRows, []string{
			r.domain,
			fmt.Sprintf("%d", c.Allowed),
			fmt.Sprintf("%d", c.Denied),
			fmt.Sprintf("%d", c.Total),
		})
	}
	fmt.Println(console.RenderTable(console.TableConfig{
		Title:   title,
		Headers: []string{"Domain", "Allowed", "Denied", "Total"},
		Rows:    tableRows,
	}))
}

func printStatsJSON(stats *firewalllog.AggregatedStats) error {
	var b strings.Builder
	b.WriteString("{")
	fmt.Fprintf(&b, `"totalRequests":%d,"allowedRequests":%d,"deniedRequests":%d,"uniqueDomains":%d,`,
		stats.TotalRequests, stats.AllowedRequests, stats.DeniedRequests, stats.UniqueDomains())
	if stats.TimeRange != nil {
		fmt.Fprintf(&b, `"timeRange":{"start":%.3f,"end":%.3f},`, stats.TimeRange.Start, stats.TimeRange.End)
	} else {
		b.WriteString(`"timeRange":null,`)
	}
	b.WriteString(`"byDomain":{`)
	domains := make([]string, 0, len(stats.ByDomain))
	for d := range stats.ByDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for i, d := range domains {
		if i > 0 {
			b.WriteString(",")
		}
		c := stats.ByDomain[d]
		fmt.Fprintf(&b, `%q:{"allowed":%d,"denied":%d,"total":%d}`, d, c.Allowed, c.Denied, c.Total)
	}
	b.WriteString("}}")
	fmt.Println(b.String())
	return nil
}
