package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Mount represents a single host-to-container bind mount declaration.
//
// Source is a host path: `~` expands against the host home directory, and a
// relative path resolves against the config directory of the layer that
// declared the mount. Target is a container path: `~` expands against
// ContainerHome regardless of the host. An empty Target defaults to Source
// (expanded with the container tilde context, not the host one).
type Mount struct {
	Source   string `yaml:"source"`
	Target   string `yaml:"target,omitempty"`
	ReadOnly *bool  `yaml:"readonly,omitempty"`
}

// IsReadOnly reports whether the mount should be bound read-only. An
// unset readonly field defaults to true.
func (m Mount) IsReadOnly() bool {
	return m.ReadOnly == nil || *m.ReadOnly
}

// Resolve renders the mount as a runtime volume spec ("source:target", with
// a ":ro" suffix for read-only mounts). configDir anchors relative sources;
// it must be the config directory of the layer that declared the mount.
// Resolve performs no I/O.
func (m Mount) Resolve(configDir string) string {
	source := ExpandTilde(m.Source, hostHome())

	target := m.Target
	if target == "" {
		target = m.Source
	}
	target = ExpandTilde(target, ContainerHome)

	if !filepath.IsAbs(source) {
		source = filepath.Join(configDir, source)
	}

	spec := source + ":" + target
	if m.IsReadOnly() {
		spec += ":ro"
	}
	return spec
}

// ExpandTilde replaces a leading `~` or `~/` in path with home. Paths
// without a tilde prefix pass through unchanged.
func ExpandTilde(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func hostHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Leave tildes unexpanded rather than guessing; the runtime will
		// reject the malformed path with a clearer error than we could
		// produce here.
		return "~"
	}
	return home
}
