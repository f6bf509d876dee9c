package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/contenant/contenant/internal/dirs"
)

// Source identifies where a configuration layer came from. Sources are
// ordered: a layer from a greater source takes precedence for conflicting
// scalar settings.
type Source int

const (
	SourceDefault Source = iota
	SourceUser
	SourceProject
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceUser:
		return "user"
	case SourceProject:
		return "project"
	default:
		return "unknown"
	}
}

// Layer is one configuration source together with the directory its file
// was loaded from. ConfigDir anchors relative mount sources declared in the
// layer. Layers are never mutated after insertion.
type Layer struct {
	Source    Source
	Config    Config
	ConfigDir string
}

// LayerMount pairs a mount with the config directory of its owning layer so
// relative sources resolve against the right location.
type LayerMount struct {
	Mount     Mount
	ConfigDir string
}

// BridgeSettings is the fully resolved bridge configuration.
type BridgeSettings struct {
	Port     int
	Triggers map[string]string
}

// Stack is an ordered sequence of configuration layers, always sorted
// ascending by source precedence. It always contains at least the default
// layer. Accessors are pure reads; the stack is safe for repeated queries.
type Stack struct {
	layers []Layer
}

// NewStack returns a stack seeded with an empty default layer.
func NewStack() *Stack {
	s := &Stack{}
	s.AddLayer(SourceDefault, Config{}, "/")
	return s
}

// Load builds the stack from the expected on-disk locations: the default
// layer, then `<config-home>/config.yml` if present, then
// `<project>/.contenant/config.yml` if present. A missing file is simply an
// absent layer; a file that fails to parse aborts the load.
func Load(d *dirs.BaseDirs, projectDir string) (*Stack, error) {
	s := NewStack()

	if path, ok := d.FindConfigFile(UserConfigName); ok {
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		s.AddLayer(SourceUser, cfg, filepath.Dir(path))
	}

	if projectDir != "" {
		path := filepath.Join(projectDir, ProjectConfigDir, UserConfigName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			s.AddLayer(SourceProject, cfg, filepath.Dir(path))
		}
	}

	return s, nil
}

// AddLayer inserts a layer, keeping the stack sorted ascending by source.
// The insertion point is before the first layer whose source is strictly
// greater, so layers of equal precedence keep their insertion order.
func (s *Stack) AddLayer(src Source, cfg Config, configDir string) {
	idx := sort.Search(len(s.layers), func(i int) bool {
		return s.layers[i].Source > src
	})
	s.layers = append(s.layers, Layer{})
	copy(s.layers[idx+1:], s.layers[idx:])
	s.layers[idx] = Layer{Source: src, Config: cfg, ConfigDir: configDir}
}

// Layers returns the layers in ascending precedence order. Callers must not
// mutate the returned slice.
func (s *Stack) Layers() []Layer {
	return s.layers
}

// ClaudeVersion returns the highest-precedence configured version, or the
// empty string when no layer sets one.
func (s *Stack) ClaudeVersion() string {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v := s.layers[i].Config.Claude.Version; v != "" {
			return v
		}
	}
	return ""
}

// MemoryLimit returns the highest-precedence configured memory limit, or
// the empty string when no layer sets one.
func (s *Stack) MemoryLimit() string {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v := s.layers[i].Config.Container.MemoryLimit; v != "" {
			return v
		}
	}
	return ""
}

// Mounts returns every declared mount in layer order, each paired with its
// owning layer's config directory. Mounts accumulate across layers rather
// than overriding each other; a higher-precedence mount shadows an earlier
// one only through the runtime's last-flag-wins bind semantics.
func (s *Stack) Mounts() []LayerMount {
	var mounts []LayerMount
	for _, layer := range s.layers {
		for _, m := range layer.Config.Mounts {
			mounts = append(mounts, LayerMount{Mount: m, ConfigDir: layer.ConfigDir})
		}
	}
	return mounts
}

// Env merges the env maps of all layers; for colliding keys the
// higher-precedence layer wins.
func (s *Stack) Env() map[string]string {
	env := make(map[string]string)
	for _, layer := range s.layers {
		for k, v := range layer.Config.Env {
			env[k] = v
		}
	}
	return env
}

// AllowedDomains concatenates the allowed-domain lists of all layers in
// ascending precedence order.
func (s *Stack) AllowedDomains() []string {
	var domains []string
	for _, layer := range s.layers {
		domains = append(domains, layer.Config.Network.AllowedDomains...)
	}
	return domains
}

// Bridge resolves the bridge settings: the port comes from the
// highest-precedence layer that sets one (DefaultBridgePort when none do),
// and triggers merge like Env.
func (s *Stack) Bridge() BridgeSettings {
	port := DefaultBridgePort
	for i := len(s.layers) - 1; i >= 0; i-- {
		if p := s.layers[i].Config.Bridge.Port; p != nil {
			port = *p
			break
		}
	}

	triggers := make(map[string]string)
	for _, layer := range s.layers {
		for name, cmd := range layer.Config.Bridge.Triggers {
			triggers[name] = cmd
		}
	}

	return BridgeSettings{Port: port, Triggers: triggers}
}

// Merged flattens the stack into a single effective Config using each
// field's merge semantics. Intended for display (`contenant config show`),
// not for mount resolution: flattening loses the per-layer config dirs.
func (s *Stack) Merged() Config {
	bridge := s.Bridge()
	port := bridge.Port

	merged := Config{
		Claude:    ClaudeConfig{Version: s.ClaudeVersion()},
		Env:       s.Env(),
		Container: ContainerConfig{MemoryLimit: s.MemoryLimit()},
		Network:   NetworkConfig{AllowedDomains: s.AllowedDomains()},
		Bridge:    BridgeConfig{Port: &port, Triggers: bridge.Triggers},
	}
	for _, lm := range s.Mounts() {
		merged.Mounts = append(merged.Mounts, lm.Mount)
	}
	return merged
}
