package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/githubnext/gh-aw-firewall-sub002/pkg/console"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/mount"
	"github.com/githubnext/gh-aw-firewall-sub002/pkg/policy"
)

// sandboxPolicySchema is the embedded JSON Schema for the optional --config
// document (SPEC_FULL.md "Configuration"): a structured alternative to the
// flag surface for the domain-policy inputs of spec §4.5/§4.6.
const sandboxPolicySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/githubnext/gh-aw-firewall/sandbox-policy.schema.json",
  "title": "gh-aw-firewall sandbox policy",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "allowDomains": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "dnsServers": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "allowHostPorts": {"type": "string"},
    "enableHostAccess": {"type": "boolean"},
    "enableFullFilesystemAccess": {"type": "boolean"},
    "mounts": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "containerWorkdir": {"type": "string"}
  }
}`

// PolicyConfig is the decoded shape of a --config document, mirroring the
// CLI flags it substitutes for (spec §6 CLI surface).
type PolicyConfig struct {
	AllowDomains               []string `json:"allowDomains"`
	DNSServers                 []string `json:"dnsServers"`
	AllowHostPorts             string   `json:"allowHostPorts"`
	EnableHostAccess           bool     `json:"enableHostAccess"`
	EnableFullFilesystemAccess bool     `json:"enableFullFilesystemAccess"`
	Mounts                     []string `json:"mounts"`
	ContainerWorkdir           string   `json:"containerWorkdir"`
}

// compiledPolicySchema lazily compiles the embedded schema once; jsonschema's
// Compiler is not safe to reuse for mutation after Compile, but Validate on
// the resulting *Schema is, so we cache the Schema rather than the Compiler.
var compiledPolicySchema *jsonschema.Schema

func loadPolicySchema() (*jsonschema.Schema, error) {
	if compiledPolicySchema != nil {
		return compiledPolicySchema, nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(sandboxPolicySchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded sandbox-policy schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "https://github.com/githubnext/gh-aw-firewall/sandbox-policy.schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("failed to register embedded sandbox-policy schema: %w", err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded sandbox-policy schema: %w", err)
	}
	compiledPolicySchema = schema
	return schema, nil
}

// LoadPolicyConfig reads and validates a --config JSON document against the
// embedded schema, then decodes it into a PolicyConfig.
func LoadPolicyConfig(path string) (*PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	schema, err := loadPolicySchema()
	if err != nil {
		return nil, err
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in config file %s: %w", path, err)
	}
	if err := schema.Validate(instance); err != nil {
		diag := console.Diagnostic{
			Type:    "error",
			Message: fmt.Sprintf("%s does not match the sandbox-policy schema", path),
			Hint:    err.Error(),
		}
		return nil, fmt.Errorf("%s", console.FormatError(diag))
	}

	var cfg PolicyConfig
	if err := decodeJSONInstance(instance, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return &cfg, nil
}

// decodeJSONInstance maps a schema-validated generic JSON value (as decoded
// by jsonschema.UnmarshalJSON: map[string]any / []any / string / bool /
// json.Number) onto a PolicyConfig by hand, avoiding a second JSON decode pass.
func decodeJSONInstance(instance any, cfg *PolicyConfig) error {
	obj, ok := instance.(map[string]any)
	if !ok {
		return fmt.Errorf("expected a JSON object at the document root")
	}
	cfg.AllowDomains = stringSlice(obj["allowDomains"])
	cfg.DNSServers = stringSlice(obj["dnsServers"])
	cfg.Mounts = stringSlice(obj["mounts"])
	if s, ok := obj["allowHostPorts"].(string); ok {
		cfg.AllowHostPorts = s
	}
	if s, ok := obj["containerWorkdir"].(string); ok {
		cfg.ContainerWorkdir = s
	}
	if b, ok := obj["enableHostAccess"].(bool); ok {
		cfg.EnableHostAccess = b
	}
	if b, ok := obj["enableFullFilesystemAccess"].(bool); ok {
		cfg.EnableFullFilesystemAccess = b
	}
	return nil
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// PolicyBuildOptions merges a PolicyConfig with the CLI flag values, with
// flags taking precedence over the config document wherever both are given
// (SPEC_FULL.md "Supplemented features": "the flags still work and take
// precedence when both are given").
func PolicyBuildOptions(cfg *PolicyConfig, flagDomains, flagDNS []string, flagHostPorts string, flagHostAccess, flagFullFS bool) policy.BuildOptions {
	opts := policy.BuildOptions{
		AllowDomains:               flagDomains,
		DNSServers:                 flagDNS,
		HostPortsAllowed:           flagHostPorts,
		EnableHostAccess:           flagHostAccess,
		EnableFullFilesystemAccess: flagFullFS,
	}
	if cfg == nil {
		return opts
	}
	if len(opts.AllowDomains) == 0 {
		opts.AllowDomains = cfg.AllowDomains
	}
	if len(opts.DNSServers) == 0 {
		opts.DNSServers = cfg.DNSServers
	}
	if opts.HostPortsAllowed == "" {
		opts.HostPortsAllowed = cfg.AllowHostPorts
	}
	if !opts.EnableHostAccess {
		opts.EnableHostAccess = cfg.EnableHostAccess
	}
	if !opts.EnableFullFilesystemAccess {
		opts.EnableFullFilesystemAccess = cfg.EnableFullFilesystemAccess
	}
	return opts
}

// MountBuildOptions merges a PolicyConfig's mount-related fields with CLI
// flags, same precedence rule as PolicyBuildOptions.
func MountBuildOptions(cfg *PolicyConfig, flagMounts []string, flagWorkdir string, flagFullFS bool) mount.BuildOptions {
	opts := mount.BuildOptions{
		EnableFullFilesystemAccess: flagFullFS,
		UserMounts:                 flagMounts,
		WorkingDir:                 flagWorkdir,
		SkipUnsetSecrets:           os.Getenv("AWF_ONE_SHOT_SKIP_UNSET") == "1",
	}
	if cfg == nil {
		return opts
	}
	if len(opts.UserMounts) == 0 {
		opts.UserMounts = cfg.Mounts
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir = cfg.ContainerWorkdir
	}
	if !opts.EnableFullFilesystemAccess {
		opts.EnableFullFilesystemAccess = cfg.EnableFullFilesystemAccess
	}
	return opts
}
