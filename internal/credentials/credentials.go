// Package credentials sources the agent's authentication from the host: the
// OS keychain entry written by a host-side Claude Code login, or an API key
// from the environment. The keychain is treated purely as an external source
// of a secret string.
package credentials

import (
	"encoding/json"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// keychainService is the macOS keychain item written by Claude Code.
const keychainService = "Claude Code-credentials"

// readKeychain is swapped out in tests.
var readKeychain = func() ([]byte, error) {
	return exec.Command("security", "find-generic-password", "-s", keychainService, "-w").Output()
}

type storedCredentials struct {
	ClaudeAiOauth oauthCredentials `json:"claudeAiOauth"`
}

type oauthCredentials struct {
	AccessToken string `json:"accessToken"`
}

// Collect returns env vars carrying whatever authentication the host can
// provide: CLAUDE_CODE_OAUTH_TOKEN from the keychain when available,
// otherwise ANTHROPIC_API_KEY passed through from the environment. An empty
// map is fine — the agent will prompt for login inside the container.
func Collect(logger *log.Logger) map[string]string {
	env := make(map[string]string)

	if token, ok := oauthToken(); ok {
		logger.Info("using OAuth token from keychain")
		env["CLAUDE_CODE_OAUTH_TOKEN"] = token
		return env
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		logger.Info("passing through ANTHROPIC_API_KEY")
		env["ANTHROPIC_API_KEY"] = key
	}

	return env
}

func oauthToken() (string, bool) {
	out, err := readKeychain()
	if err != nil {
		return "", false
	}

	var creds storedCredentials
	if err := json.Unmarshal(out, &creds); err != nil {
		return "", false
	}
	if creds.ClaudeAiOauth.AccessToken == "" {
		return "", false
	}
	return creds.ClaudeAiOauth.AccessToken, true
}
