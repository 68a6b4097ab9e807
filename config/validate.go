package config

import (
	"fmt"
	"strings"

	"github.com/linanwx/leadbridge/cron"
)

// Validate checks structural invariants that defaults cannot repair.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Employees))
	for i, e := range c.Employees {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return fmt.Errorf("employees[%d]: id is required", i)
		}
		if id != e.ID {
			return fmt.Errorf("employees[%d]: id %q has surrounding whitespace", i, e.ID)
		}
		if seen[id] {
			return fmt.Errorf("employees[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
	}
	if err := cron.ParseExpr(c.Bridge.SweepSchedule); err != nil {
		return fmt.Errorf("bridge.sweepSchedule: %w", err)
	}
	if c.Bridge.MaxPendingAge <= 0 {
		return fmt.Errorf("bridge.maxPendingAge must be positive")
	}
	return nil
}
