package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenant/contenant/internal/dirs"
)

func intPtr(i int) *int { return &i }

func TestNewStackSeedsDefaultLayer(t *testing.T) {
	s := NewStack()

	layers := s.Layers()
	require.Len(t, layers, 1)
	assert.Equal(t, SourceDefault, layers[0].Source)
}

func TestAddLayerKeepsPrecedenceOrder(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceProject, Config{}, "/proj")
	s.AddLayer(SourceUser, Config{}, "/user-a")
	s.AddLayer(SourceUser, Config{}, "/user-b")

	layers := s.Layers()
	require.Len(t, layers, 4)
	for i := 0; i < len(layers)-1; i++ {
		assert.LessOrEqual(t, layers[i].Source, layers[i+1].Source)
	}

	// Equal-precedence layers keep insertion order.
	assert.Equal(t, "/user-a", layers[1].ConfigDir)
	assert.Equal(t, "/user-b", layers[2].ConfigDir)
	assert.Equal(t, SourceProject, layers[3].Source)
}

func TestEnvHigherPrecedenceWins(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceUser, Config{Env: map[string]string{"K": "user", "USER_ONLY": "u"}}, "/user")
	s.AddLayer(SourceProject, Config{Env: map[string]string{"K": "project", "PROJ_ONLY": "p"}}, "/proj")

	env := s.Env()
	assert.Equal(t, "project", env["K"])
	assert.Equal(t, "u", env["USER_ONLY"])
	assert.Equal(t, "p", env["PROJ_ONLY"])
}

func TestMountsAccumulateInLayerOrder(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceProject, Config{Mounts: []Mount{{Source: "/p1"}}}, "/proj")
	s.AddLayer(SourceUser, Config{Mounts: []Mount{{Source: "/u1"}, {Source: "/u2"}}}, "/user")

	mounts := s.Mounts()
	require.Len(t, mounts, 3)
	assert.Equal(t, "/u1", mounts[0].Mount.Source)
	assert.Equal(t, "/u2", mounts[1].Mount.Source)
	assert.Equal(t, "/p1", mounts[2].Mount.Source)
	assert.Equal(t, "/user", mounts[0].ConfigDir)
	assert.Equal(t, "/proj", mounts[2].ConfigDir)
}

func TestClaudeVersionScalarPrecedence(t *testing.T) {
	s := NewStack()
	assert.Empty(t, s.ClaudeVersion())

	s.AddLayer(SourceUser, Config{Claude: ClaudeConfig{Version: "1.0.0"}}, "/user")
	assert.Equal(t, "1.0.0", s.ClaudeVersion())

	s.AddLayer(SourceProject, Config{Claude: ClaudeConfig{Version: "2.0.0"}}, "/proj")
	assert.Equal(t, "2.0.0", s.ClaudeVersion())
}

func TestBridgePortDefault(t *testing.T) {
	s := NewStack()

	assert.Equal(t, DefaultBridgePort, s.Bridge().Port)
}

func TestBridgePortHighestPrecedenceSetWins(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceUser, Config{Bridge: BridgeConfig{Port: intPtr(9000)}}, "/user")
	assert.Equal(t, 9000, s.Bridge().Port)

	// A project layer that explicitly sets the default port still wins:
	// unset and set-to-default are distinguishable.
	s.AddLayer(SourceProject, Config{Bridge: BridgeConfig{Port: intPtr(DefaultBridgePort)}}, "/proj")
	assert.Equal(t, DefaultBridgePort, s.Bridge().Port)
}

func TestBridgePortUnsetLayerDoesNotOverride(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceUser, Config{Bridge: BridgeConfig{Port: intPtr(9000)}}, "/user")
	s.AddLayer(SourceProject, Config{}, "/proj")

	assert.Equal(t, 9000, s.Bridge().Port)
}

func TestBridgeTriggersMerge(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceUser, Config{Bridge: BridgeConfig{Triggers: map[string]string{
		"notify": "echo user",
		"open":   "xdg-open .",
	}}}, "/user")
	s.AddLayer(SourceProject, Config{Bridge: BridgeConfig{Triggers: map[string]string{
		"notify": "echo project",
	}}}, "/proj")

	triggers := s.Bridge().Triggers
	assert.Equal(t, "echo project", triggers["notify"])
	assert.Equal(t, "xdg-open .", triggers["open"])
}

func TestAllowedDomainsAccumulate(t *testing.T) {
	s := NewStack()
	s.AddLayer(SourceUser, Config{Network: NetworkConfig{AllowedDomains: []string{"a.example.com"}}}, "/user")
	s.AddLayer(SourceProject, Config{Network: NetworkConfig{AllowedDomains: []string{"b.example.com"}}}, "/proj")

	assert.Equal(t, []string{"a.example.com", "b.example.com"}, s.AllowedDomains())
}

func TestLoadMissingFilesYieldsDefaultOnly(t *testing.T) {
	d := &dirs.BaseDirs{
		ConfigHome: filepath.Join(t.TempDir(), "config"),
		CacheHome:  filepath.Join(t.TempDir(), "cache"),
		StateHome:  filepath.Join(t.TempDir(), "state"),
	}

	s, err := Load(d, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, s.Layers(), 1)
}

func TestLoadReadsUserAndProjectLayers(t *testing.T) {
	configHome := t.TempDir()
	projectDir := t.TempDir()
	d := &dirs.BaseDirs{ConfigHome: configHome}

	userConfig := `
claude:
  version: "1.0.17"
env:
  EDITOR: vim
mounts:
  - source: ~/notes
    readonly: false
bridge:
  port: 9000
`
	require.NoError(t, os.WriteFile(filepath.Join(configHome, UserConfigName), []byte(userConfig), 0o644))

	projectConfig := `
env:
  EDITOR: emacs
network:
  allowed_domains:
    - api.github.com
bridge:
  triggers:
    test: make test
`
	projectConfigDir := filepath.Join(projectDir, ProjectConfigDir)
	require.NoError(t, os.MkdirAll(projectConfigDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectConfigDir, UserConfigName), []byte(projectConfig), 0o644))

	s, err := Load(d, projectDir)
	require.NoError(t, err)

	layers := s.Layers()
	require.Len(t, layers, 3)
	assert.Equal(t, SourceUser, layers[1].Source)
	assert.Equal(t, configHome, layers[1].ConfigDir)
	assert.Equal(t, SourceProject, layers[2].Source)
	assert.Equal(t, projectConfigDir, layers[2].ConfigDir)

	assert.Equal(t, "1.0.17", s.ClaudeVersion())
	assert.Equal(t, "emacs", s.Env()["EDITOR"])
	assert.Equal(t, 9000, s.Bridge().Port)
	assert.Equal(t, "make test", s.Bridge().Triggers["test"])
	assert.Equal(t, []string{"api.github.com"}, s.AllowedDomains())

	mounts := s.Mounts()
	require.Len(t, mounts, 1)
	assert.False(t, mounts[0].Mount.IsReadOnly())
}

func TestLoadMalformedConfigIsHardError(t *testing.T) {
	configHome := t.TempDir()
	d := &dirs.BaseDirs{ConfigHome: configHome}

	require.NoError(t, os.WriteFile(filepath.Join(configHome, UserConfigName), []byte("mounts: [unclosed"), 0o644))

	_, err := Load(d, t.TempDir())
	require.Error(t, err)
}
