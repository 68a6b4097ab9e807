// Package webhook accepts tool outputs delivered by external executors and
// hands them to the run they belong to.
package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/lead"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/run"
	"github.com/linanwx/leadbridge/thread"
)

// Payload is the untrusted body of a delivery.
type Payload struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
	ThreadID   string `json:"thread_id"`
	RunID      string `json:"run_id"`
}

// Result acknowledges a delivery.
type Result struct {
	Status       string `json:"status"`
	ToolCallID   string `json:"tool_call_id"`
	Submitted    bool   `json:"submitted"`
	Awaiting     int    `json:"awaiting"`
	LeadsCreated int    `json:"leads_created"`
	LeadError    string `json:"lead_error,omitempty"`
}

// LeadExtractor stores the leads carried by a tool output.
type LeadExtractor interface {
	Extract(ctx context.Context, raw string, src lead.Source) (*lead.Result, error)
}

// Config holds the collaborators of a Bridge.
type Config struct {
	Employees    *employee.Directory
	Isolation    *thread.Isolation
	Orchestrator *run.Orchestrator
	Leads        LeadExtractor // optional
	LeadTools    []string      // function names whose output carries leads
}

// Bridge validates deliveries and forwards them.
type Bridge struct {
	employees *employee.Directory
	isolation *thread.Isolation
	orch      *run.Orchestrator
	leads     LeadExtractor
	leadTools map[string]bool
}

// NewBridge creates a bridge.
func NewBridge(cfg Config) *Bridge {
	b := &Bridge{
		employees: cfg.Employees,
		isolation: cfg.Isolation,
		orch:      cfg.Orchestrator,
		leads:     cfg.Leads,
		leadTools: make(map[string]bool, len(cfg.LeadTools)),
	}
	for _, name := range cfg.LeadTools {
		if name = strings.TrimSpace(name); name != "" {
			b.leadTools[name] = true
		}
	}
	return b
}

// Deliver checks the payload against the employee's threads and pending
// calls, then forwards the output. Lead extraction runs after forwarding;
// its failure is reported in the result and never undoes the forward.
func (b *Bridge) Deliver(ctx context.Context, p Payload, employeeID string) (*Result, error) {
	p.ToolCallID = strings.TrimSpace(p.ToolCallID)
	p.ThreadID = strings.TrimSpace(p.ThreadID)
	p.RunID = strings.TrimSpace(p.RunID)
	employeeID = strings.TrimSpace(employeeID)

	if err := missing(p, employeeID); err != nil {
		return nil, err
	}
	if !b.employees.Exists(employeeID) {
		return nil, bridgeerr.Newf(bridgeerr.KindEmployeeNotConfigured, "employee %q is not configured", employeeID)
	}
	if err := b.isolation.Check(p.ThreadID, employeeID); err != nil {
		return nil, err
	}

	acc, err := b.orch.AcceptToolOutput(ctx, employeeID, p.ToolCallID, p.ThreadID, p.RunID, p.Output)
	if err != nil {
		if errors.Is(err, bridgeerr.ErrUnknownToolCall) {
			logger.Warn("unmatched tool output delivery",
				"employee", employeeID, "thread", p.ThreadID, "run", p.RunID, "toolCall", p.ToolCallID)
		}
		return nil, err
	}
	res := &Result{
		Status:     "ok",
		ToolCallID: p.ToolCallID,
		Submitted:  acc.Submitted,
		Awaiting:   acc.Awaiting,
	}
	logger.Info("tool output delivered",
		"employee", employeeID, "thread", p.ThreadID, "run", p.RunID, "toolCall", p.ToolCallID,
		"function", acc.Call.FunctionName, "submitted", acc.Submitted, "awaiting", acc.Awaiting)

	if b.leads == nil || !b.leadTools[acc.Call.FunctionName] {
		return res, nil
	}
	extracted, err := b.leads.Extract(ctx, p.Output, lead.Source{
		EmployeeID: employeeID,
		SourceTool: acc.Call.FunctionName,
		ThreadID:   p.ThreadID,
		RunID:      p.RunID,
		ToolCallID: p.ToolCallID,
	})
	if err != nil {
		logger.Warn("lead extraction failed", "employee", employeeID, "toolCall", p.ToolCallID, "err", err)
		res.LeadError = bridgeerr.DetailOf(err)
		return res, nil
	}
	res.LeadsCreated = extracted.Count
	return res, nil
}

func missing(p Payload, employeeID string) error {
	var names []string
	for _, f := range []struct{ name, value string }{
		{"tool_call_id", p.ToolCallID},
		{"output", p.Output},
		{"thread_id", p.ThreadID},
		{"run_id", p.RunID},
		{"employee_id", employeeID},
	} {
		if strings.TrimSpace(f.value) == "" {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return bridgeerr.Newf(bridgeerr.KindMissingFields, "missing required fields: %s", strings.Join(names, ", "))
}
