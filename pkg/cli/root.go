// Package cli implements the command tree for the egress firewall and audit
// layer: "run" (spec §4.7) and "logs"/"logs stats"/"logs summary"/"logs
// fetch" (spec §4.1-§4.4, SPEC_FULL.md). Within this package only the "run"
// command calls os.Exit, to pass the sandbox's exit code through; the main
// package exits 1 when a command returns an error.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/constants"
)

// rootCommandName is used in the root command's Use field and in Examples
// text across subcommands.
const rootCommandName = constants.CLIExtensionPrefix

// NewRootCommand builds the root cobra command and wires every subcommand
// (spec §6 "CLI surface").
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   rootCommandName,
		Short: "Egress firewall and audit layer for short-lived agent workloads",
		Long: `gh-aw-firewall executes a user command inside an isolated, dual-container
sandbox where every TCP/TLS connection is forced through a filtering forward
proxy, every other TCP/DNS packet is dropped by a stateless packet filter,
and every decision is recorded in a structured access log.`,
	}

	root.AddCommand(NewRunCommand())
	root.AddCommand(NewLogsCommand())

	return root
}
