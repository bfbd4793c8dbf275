// ABOUTME: CLI configuration loaded from a TOML file
// ABOUTME: Resolves server URL and token path with XDG-style defaults

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// cliConfig is the on-disk CLI configuration.
type cliConfig struct {
	// Server is the gateway base URL, e.g. http://localhost:8080.
	Server string `toml:"server"`
	// TokenPath is where the bearer token is persisted between runs.
	TokenPath string `toml:"token_path"`
}

// configDir returns the CLI's config directory.
// Priority: XDG_CONFIG_HOME/support-chat > ~/.config/support-chat
func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "support-chat")
}

// loadConfig reads cli.toml, tolerating a missing file. Flag values
// override whatever the file sets.
func loadConfig(path string) (*cliConfig, error) {
	cfg := &cliConfig{
		Server:    "http://localhost:8080",
		TokenPath: filepath.Join(configDir(), "token"),
	}

	if path == "" {
		path = filepath.Join(configDir(), "cli.toml")
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// wsEndpoint derives the push channel URL from the server base URL.
func (c *cliConfig) wsEndpoint() string {
	switch {
	case len(c.Server) > 8 && c.Server[:8] == "https://":
		return "wss://" + c.Server[8:] + "/ws"
	case len(c.Server) > 7 && c.Server[:7] == "http://":
		return "ws://" + c.Server[7:] + "/ws"
	}
	return c.Server + "/ws"
}
