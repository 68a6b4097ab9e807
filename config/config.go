// Package config handles configuration loading and saving.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Runtime   RuntimeConfig    `yaml:"runtime"`
	Employees []EmployeeConfig `yaml:"employees"`
	Bridge    BridgeConfig     `yaml:"bridge"`
	Store     StoreConfig      `yaml:"store"`
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// RuntimeConfig holds credentials for the assistant runtime.
type RuntimeConfig struct {
	APIKey       string `yaml:"apiKey,omitempty"`
	APIBase      string `yaml:"apiBase,omitempty"` // optional custom base URL
	Organization string `yaml:"organization,omitempty"`
}

// EmployeeConfig describes one AI employee persona.
type EmployeeConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Role        string `yaml:"role,omitempty"`
	AssistantID string `yaml:"assistantId"`
	WebhookURL  string `yaml:"webhookUrl,omitempty"`
}

// BridgeConfig tunes the correlation bridge.
type BridgeConfig struct {
	StrictIsolation  bool          `yaml:"strictIsolation,omitempty"` // reject unknown threads instead of binding on first use
	MaxPendingAge    time.Duration `yaml:"maxPendingAge,omitempty"`
	SweepSchedule    string        `yaml:"sweepSchedule,omitempty"` // robfig cron spec
	MaxPending       int           `yaml:"maxPending,omitempty"`
	LeadTools        []string      `yaml:"leadTools,omitempty"`
	PassthroughTools []string      `yaml:"passthroughTools,omitempty"`
	RelevantKeywords []string      `yaml:"relevantKeywords,omitempty"`
}

// StoreConfig locates the record store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to <configDir>/leadbridge.db
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Level   string `yaml:"level,omitempty"`
	Stdout  bool   `yaml:"stdout,omitempty"`
	File    string `yaml:"file,omitempty"`
}

// Employee returns the employee config with the given id.
func (c *Config) Employee(id string) (EmployeeConfig, bool) {
	if c == nil {
		return EmployeeConfig{}, false
	}
	for _, e := range c.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return EmployeeConfig{}, false
}
