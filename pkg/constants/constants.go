// Package constants holds process-wide names and defaults shared across the
// CLI, the domain policy model, and the enforcement engine.
package constants

// CLIExtensionPrefix is the prefix used in user-facing output to refer to the CLI.
const CLIExtensionPrefix = "gh-aw-firewall"

// Environment variables recognized by the CLI and enforcement engine (spec §6).
const (
	// EnvLogsDir points at a preserved log directory for the logs subcommands.
	EnvLogsDir = "AWF_LOGS_DIR"
	// EnvOneShotSkipUnset disables the on-first-read clearing of secret env vars.
	EnvOneShotSkipUnset = "AWF_ONE_SHOT_SKIP_UNSET"
)

// SecretEnvVarNames is the allow-list of environment variable names eligible
// for one-shot (cache-then-clear) handling by the mount plan's env filter.
// Treated as configuration, not code (spec §9 Open Questions): callers may
// extend this slice before building a MountPlan.
var SecretEnvVarNames = []string{
	"GITHUB_TOKEN",
	"GITHUB_PERSONAL_ACCESS_TOKEN",
	"COPILOT_GITHUB_TOKEN",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
}

// DefaultDNSServers are Google's public resolvers, used when a PolicySet is
// built without an explicit dns-servers flag.
var DefaultDNSServers = []string{"8.8.8.8", "8.8.4.4"}

// HostGatewayName is the logical name by which the agent reaches the host
// when enableHostAccess is true.
const HostGatewayName = "host.docker.internal"

// DefaultHostPortRangeLow and DefaultHostPortRangeHigh bound the host ports
// opened when the localhost keyword is used without an explicit override.
const (
	DefaultHostPortRangeLow  = 3000
	DefaultHostPortRangeHigh = 10000
)

// PreservedLogDirPrefix is the basename prefix of a directory that holds a
// preserved access log past the run's lifetime.
const PreservedLogDirPrefix = "squid-logs-"

// ProxyAccessLogPath is where the proxy container writes its access log.
const ProxyAccessLogPath = "/var/log/squid/access.log"

// DefaultProxyImage and DefaultAgentImage are used when the CLI's
// --proxy-image/--agent-image flags are left empty.
const (
	DefaultProxyImage = "gh-aw-firewall/proxy:latest"
	DefaultAgentImage = "gh-aw-firewall/agent:latest"
)

// ProxyContainerName, InitContainerName and AgentContainerName are the
// canonical container names for one sandbox invocation.
const (
	ProxyContainerName = "gh-aw-firewall-proxy"
	InitContainerName  = "gh-aw-firewall-init"
	AgentContainerName = "gh-aw-firewall-agent"
)
