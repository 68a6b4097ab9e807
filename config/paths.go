package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/linanwx/leadbridge/internal/runtimecfg"
)

const configFileName = "config.yaml"

var configDirOverride string

// SetConfigDir overrides the config directory for this process.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// ConfigDir returns the leadbridge config directory (~/.leadbridge).
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		dir := configDirOverride
		if dir == "~" || strings.HasPrefix(dir, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			if dir == "~" {
				return home, nil
			}
			return filepath.Join(home, dir[2:]), nil
		}
		if filepath.IsAbs(dir) {
			return filepath.Clean(dir), nil
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		return filepath.Clean(abs), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".leadbridge"), nil
}

// ConfigPath returns the default YAML config path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// StorePath returns the SQLite database path, expanding ~ if needed.
func (c *Config) StorePath() (string, error) {
	p := strings.TrimSpace(c.Store.Path)
	if p == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, runtimecfg.StoreDefaultFileName), nil
	}

	// Expand ~ to home directory
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	return p, nil
}

// EnsureStoreDir creates the directory holding the database file.
func (c *Config) EnsureStoreDir() error {
	p, err := c.StorePath()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(p), 0755)
}
