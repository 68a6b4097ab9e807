package config

import (
	"errors"
	"os"
	"strings"
)

const (
	envAPIKey  = "OPENAI_API_KEY"
	envAPIBase = "OPENAI_API_BASE"
)

// GetAPIKey returns the runtime API key (env overrides config).
func (c *Config) GetAPIKey() (string, error) {
	if v := strings.TrimSpace(os.Getenv(envAPIKey)); v != "" {
		return v, nil
	}
	if c == nil || strings.TrimSpace(c.Runtime.APIKey) == "" {
		return "", errors.New("assistant runtime API key not configured")
	}
	return strings.TrimSpace(c.Runtime.APIKey), nil
}

// GetAPIBase returns the runtime base URL (env overrides config).
func (c *Config) GetAPIBase() string {
	if v := strings.TrimSpace(os.Getenv(envAPIBase)); v != "" {
		return v
	}
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Runtime.APIBase)
}
