package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the parsed contents of one configuration file. Each field
// carries its own merge behavior across layers: scalars are last-writer-wins
// by precedence, mounts and allowed domains accumulate, and env and triggers
// merge with higher-precedence overrides. The merging itself lives on Stack;
// a Config never sees the other layers.
type Config struct {
	Claude    ClaudeConfig      `yaml:"claude,omitempty"`
	Mounts    []Mount           `yaml:"mounts,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Container ContainerConfig   `yaml:"container,omitempty"`
	Network   NetworkConfig     `yaml:"network,omitempty"`
	Bridge    BridgeConfig      `yaml:"bridge,omitempty"`
}

// ClaudeConfig pins the agent itself.
type ClaudeConfig struct {
	// Version selects the Claude Code release baked into the base image.
	// Empty means the layer does not set a version.
	Version string `yaml:"version,omitempty"`
}

// ContainerConfig configures container runtime settings.
type ContainerConfig struct {
	// MemoryLimit is a human-readable size such as "4g" or "512m".
	MemoryLimit string `yaml:"memory_limit,omitempty"`
}

// NetworkConfig configures the egress allowlist.
type NetworkConfig struct {
	// AllowedDomains are resolved to IPv4 CIDRs for the container firewall.
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
}

// BridgeConfig configures the host-side trigger bridge.
type BridgeConfig struct {
	// Port is nil when the layer does not set it. Keeping "unset" explicit
	// lets a higher-precedence layer pin the port to the default without a
	// lower layer's value silently winning.
	Port *int `yaml:"port,omitempty"`

	// Triggers maps trigger names to host shell commands.
	Triggers map[string]string `yaml:"triggers,omitempty"`
}

// LoadFile parses a single configuration file. A file that exists but does
// not parse is a hard error: malformed configuration must never be treated
// as absent configuration.
//
// Layer files are decoded with yaml.v3 rather than viper because env keys
// and trigger names are case-sensitive and viper lowercases map keys.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
