// ABOUTME: User profile loading for the TUI
// ABOUTME: Loads TOML from the XDG config path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Profile holds per-user TUI preferences, separate from the backend
// connection config.
type Profile struct {
	// User identifies the end user to the backend. Defaults to the
	// local username.
	User string `toml:"user"`

	// ExportDir is where /export writes transcripts by default.
	ExportDir string `toml:"export_dir"`

	// Color toggles ANSI color output.
	Color bool `toml:"color"`
}

func defaultProfile() *Profile {
	user := os.Getenv("USER")
	if user == "" {
		user = "parley-user"
	}
	return &Profile{User: user, Color: true}
}

// getProfilePath returns XDG_CONFIG_HOME/parley/profile.toml or the
// ~/.config fallback.
func getProfilePath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "profile.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "parley", "profile.toml")
}

// loadProfile reads the profile file, expanding ${VAR} references. A
// missing file yields defaults; a malformed one is an error.
func loadProfile() (*Profile, error) {
	path := getProfilePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	expanded := expandEnvVars(string(data))

	profile := defaultProfile()
	if _, err := toml.Decode(expanded, profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if profile.User == "" {
		return nil, fmt.Errorf("profile user must not be empty")
	}
	return profile, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
