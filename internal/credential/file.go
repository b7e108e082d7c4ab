// ABOUTME: Token resolution from env var, config value and XDG token file
// ABOUTME: Env var first, then the configured value, then ~/.config/coven-chat/token

package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnvToken is the environment variable consulted first.
const EnvToken = "CHATSYNC_TOKEN"

// DefaultTokenPath returns $XDG_CONFIG_HOME/coven-chat/token, falling back to
// ~/.config/coven-chat/token.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven-chat", "token")
}

// Resolve picks the session token: env var, then configured token, then the
// token file. A missing token file is not an error.
func Resolve(configured, tokenFile string) (string, error) {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(configured); token != "" {
		return token, nil
	}
	if tokenFile == "" {
		tokenFile = DefaultTokenPath()
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes token to path with owner-only permissions.
func Save(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Remove deletes the token file. Removing a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
