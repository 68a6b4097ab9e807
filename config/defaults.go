package config

import (
	"path/filepath"

	"github.com/linanwx/leadbridge/internal/runtimecfg"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			APIKey: "",
		},
		Employees: []EmployeeConfig{
			{
				ID:          "alice",
				Name:        "Alice",
				Role:        "Lead Researcher",
				AssistantID: "asst_placeholder",
			},
		},
		Bridge: BridgeConfig{
			MaxPendingAge:    runtimecfg.BridgeDefaultMaxPendingAge,
			SweepSchedule:    runtimecfg.BridgeDefaultSweepSchedule,
			MaxPending:       runtimecfg.BridgeDefaultMaxPending,
			LeadTools:        append([]string(nil), runtimecfg.BridgeDefaultLeadTools...),
			RelevantKeywords: append([]string(nil), runtimecfg.LeadDefaultRelevantKeywords...),
		},
		Server: ServerConfig{
			Addr: runtimecfg.ServerDefaultAddr,
		},
		Logging: defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	dir, err := ConfigDir()
	if err != nil {
		dir = ""
	}
	logFile := filepath.Join(dir, "logs", "leadbridge.log")
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    logFile,
	}
}

func (c *Config) applyDefaults() {
	if c.Bridge.MaxPendingAge <= 0 {
		c.Bridge.MaxPendingAge = runtimecfg.BridgeDefaultMaxPendingAge
	}
	if c.Bridge.SweepSchedule == "" {
		c.Bridge.SweepSchedule = runtimecfg.BridgeDefaultSweepSchedule
	}
	if c.Bridge.MaxPending < 0 {
		c.Bridge.MaxPending = 0
	}
	if c.Bridge.LeadTools == nil {
		c.Bridge.LeadTools = append([]string(nil), runtimecfg.BridgeDefaultLeadTools...)
	}
	if c.Bridge.RelevantKeywords == nil {
		c.Bridge.RelevantKeywords = append([]string(nil), runtimecfg.LeadDefaultRelevantKeywords...)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = runtimecfg.ServerDefaultAddr
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}

	hasAny := c.Logging.Level != "" || c.Logging.File != "" || c.Logging.Stdout
	if c.Logging.Enabled == nil && hasAny {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.Stdout = def.Stdout
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
