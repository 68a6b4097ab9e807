package health

import (
	"fmt"
	"strings"
)

// FormatText formats a snapshot into a human-readable text block.
func FormatText(s Snapshot) string {
	var b strings.Builder
	b.WriteString("leadbridge Health\n")
	b.WriteString("=================\n\n")
	b.WriteString(fmt.Sprintf("Status: %s\n\n", s.Status))
	b.WriteString("Memory:\n")
	b.WriteString(fmt.Sprintf("  Allocated: %.2f MB\n", s.Memory.AllocMB))
	b.WriteString(fmt.Sprintf("  System: %.2f MB\n", s.Memory.SysMB))
	b.WriteString(fmt.Sprintf("  GC Cycles: %d\n\n", s.Memory.NumGC))
	b.WriteString("Runtime:\n")
	b.WriteString(fmt.Sprintf("  Go Version: %s\n", s.Runtime.Version))
	b.WriteString(fmt.Sprintf("  OS/Arch: %s/%s\n", s.Runtime.OS, s.Runtime.Arch))
	b.WriteString(fmt.Sprintf("  Goroutines: %d\n", s.Goroutines))
	b.WriteString(fmt.Sprintf("\nTime: %s (UTC%s)\n", s.Time.Local, s.Time.UTCOffset))

	if s.Bridge != nil {
		b.WriteString("\nBridge:\n")
		b.WriteString(fmt.Sprintf("  Employees: %d (%d configured)\n", s.Bridge.Employees, s.Bridge.ConfiguredEmployees))
		b.WriteString(fmt.Sprintf("  Bound Threads: %d\n", s.Bridge.BoundThreads))
		b.WriteString(fmt.Sprintf("  Pending Tool Calls: %d\n", s.Bridge.PendingToolCalls))
		b.WriteString(fmt.Sprintf("  Strict Isolation: %t\n", s.Bridge.StrictIsolation))
	}

	if s.Store != nil {
		b.WriteString("\nStore:\n")
		if s.Store.Path != "" {
			b.WriteString(fmt.Sprintf("  Path: %s\n", s.Store.Path))
		}
		b.WriteString(fmt.Sprintf("  Reachable: %t\n", s.Store.Reachable))
		if s.Store.Error != "" {
			b.WriteString(fmt.Sprintf("  Error: %s\n", s.Store.Error))
		}
	}

	if s.Sweep != nil {
		b.WriteString("\nSweep:\n")
		b.WriteString(fmt.Sprintf("  Schedule: %s\n", s.Sweep.Schedule))
		b.WriteString(fmt.Sprintf("  Max Pending Age: %s\n", s.Sweep.MaxPendingAge))
		if s.Sweep.NextRun != "" {
			b.WriteString(fmt.Sprintf("  Next Run: %s\n", s.Sweep.NextRun))
		}
	}

	return b.String()
}
