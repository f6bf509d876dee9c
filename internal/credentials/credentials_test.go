package credentials

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func withKeychain(t *testing.T, out []byte, err error) {
	t.Helper()
	orig := readKeychain
	readKeychain = func() ([]byte, error) { return out, err }
	t.Cleanup(func() { readKeychain = orig })
}

func TestCollectUsesKeychainToken(t *testing.T) {
	withKeychain(t, []byte(`{"claudeAiOauth":{"accessToken":"tok-123"}}`), nil)
	t.Setenv("ANTHROPIC_API_KEY", "ignored-when-keychain-wins")

	env := Collect(testLogger())

	assert.Equal(t, map[string]string{"CLAUDE_CODE_OAUTH_TOKEN": "tok-123"}, env)
}

func TestCollectFallsBackToAPIKey(t *testing.T) {
	withKeychain(t, nil, errors.New("no keychain"))
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	env := Collect(testLogger())

	assert.Equal(t, map[string]string{"ANTHROPIC_API_KEY": "sk-ant-test"}, env)
}

func TestCollectEmptyWhenNothingAvailable(t *testing.T) {
	withKeychain(t, nil, errors.New("no keychain"))
	t.Setenv("ANTHROPIC_API_KEY", "")

	env := Collect(testLogger())

	assert.Empty(t, env)
}

func TestCollectIgnoresMalformedKeychainPayload(t *testing.T) {
	withKeychain(t, []byte("not json"), nil)
	t.Setenv("ANTHROPIC_API_KEY", "")

	env := Collect(testLogger())

	assert.Empty(t, env)
}
