// Package run drives remote assistant runs on behalf of employees: it opens
// conversations, reports run status, registers the tool calls a run is
// waiting on and submits their outputs once a step is fully answered.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/provider"
	"github.com/linanwx/leadbridge/thread"
	"github.com/linanwx/leadbridge/toolargs"
)

// Conversation is the record written when a run is started on a thread.
type Conversation struct {
	ThreadID   string
	EmployeeID string
	RunID      string
	StartedAt  time.Time
}

// ConversationRecorder persists conversation starts so thread bindings
// survive a restart.
type ConversationRecorder interface {
	RecordConversation(ctx context.Context, c Conversation) error
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Runtime       provider.Runtime
	Employees     *employee.Directory
	Isolation     *thread.Isolation
	Pending       *pending.Registry
	Parser        *toolargs.Parser
	Conversations ConversationRecorder // optional
	Now           func() time.Time
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	runtime       provider.Runtime
	employees     *employee.Directory
	isolation     *thread.Isolation
	pending       *pending.Registry
	parser        *toolargs.Parser
	conversations ConversationRecorder
	now           func() time.Time

	mu    sync.Mutex
	steps map[stepKey]*step
}

// NewOrchestrator creates an orchestrator. Missing isolation, registry and
// parser are replaced with empty defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		runtime:       cfg.Runtime,
		employees:     cfg.Employees,
		isolation:     cfg.Isolation,
		pending:       cfg.Pending,
		parser:        cfg.Parser,
		conversations: cfg.Conversations,
		now:           cfg.Now,
		steps:         make(map[stepKey]*step),
	}
	if o.employees == nil {
		o.employees = employee.NewDirectory(nil)
	}
	if o.isolation == nil {
		o.isolation = thread.NewIsolation()
	}
	if o.pending == nil {
		o.pending = pending.NewRegistry()
	}
	if o.parser == nil {
		o.parser = toolargs.NewParser(nil)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// StartResult is returned as soon as a run has been created.
type StartResult struct {
	ThreadID string            `json:"thread_id"`
	RunID    string            `json:"run_id"`
	Status   Status            `json:"status"`
	Employee employee.Employee `json:"employee"`
}

// StartConversation opens a new thread for employeeID, posts message and
// starts a run. It does not wait for the run to finish.
func (o *Orchestrator) StartConversation(ctx context.Context, employeeID, message string) (*StartResult, error) {
	employeeID = strings.TrimSpace(employeeID)
	if err := requireFields("employee_id", employeeID, "message", message); err != nil {
		return nil, err
	}
	emp, err := o.employees.Require(employeeID)
	if err != nil {
		return nil, err
	}

	threadID, err := o.runtime.CreateThread(ctx)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "create thread failed", err)
	}
	if err := o.isolation.Bind(threadID, emp.ID); err != nil {
		return nil, err
	}
	return o.startRun(ctx, threadID, emp, message)
}

// ContinueConversation posts a follow-up message on a thread the employee
// owns and starts a new run on it.
func (o *Orchestrator) ContinueConversation(ctx context.Context, threadID, employeeID, message string) (*StartResult, error) {
	threadID = strings.TrimSpace(threadID)
	employeeID = strings.TrimSpace(employeeID)
	if err := requireFields("thread_id", threadID, "employee_id", employeeID, "message", message); err != nil {
		return nil, err
	}
	emp, err := o.employees.Require(employeeID)
	if err != nil {
		return nil, err
	}
	if err := o.isolation.Validate(threadID, emp.ID); err != nil {
		return nil, err
	}
	return o.startRun(ctx, threadID, emp, message)
}

func (o *Orchestrator) startRun(ctx context.Context, threadID string, emp employee.Employee, message string) (*StartResult, error) {
	r, err := o.runtime.CreateRun(ctx, threadID, emp.AssistantID, message)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "create run failed", err)
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "unrecognized run status", err)
	}
	if status == StatusRequiresAction {
		if _, err := o.registerStep(emp.ID, threadID, r); err != nil {
			return nil, err
		}
	}

	if o.conversations != nil {
		rec := Conversation{ThreadID: threadID, EmployeeID: emp.ID, RunID: r.ID, StartedAt: o.now()}
		if err := o.conversations.RecordConversation(ctx, rec); err != nil {
			logger.Warn("failed to record conversation", "thread", threadID, "employee", emp.ID, "err", err)
		}
	}

	logger.Info("run started", "employee", emp.ID, "thread", threadID, "run", r.ID, "status", status)
	return &StartResult{ThreadID: threadID, RunID: r.ID, Status: status, Employee: emp}, nil
}

// ToolCallReport describes one tool call of a run waiting on tool output.
type ToolCallReport struct {
	ID           string             `json:"id"`
	Function     string             `json:"function"`
	Arguments    toolargs.Arguments `json:"arguments,omitempty"`
	RawArguments string             `json:"raw_arguments"`
	ParseError   string             `json:"parse_error,omitempty"`
	Pending      bool               `json:"pending"`
}

// UnmarshalJSON decodes Arguments from its tagged wire form.
func (r *ToolCallReport) UnmarshalJSON(data []byte) error {
	type fields ToolCallReport
	var w struct {
		fields
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = ToolCallReport(w.fields)
	r.Arguments = nil
	if len(w.Arguments) == 0 || string(w.Arguments) == "null" {
		return nil
	}
	args, err := toolargs.Unmarshal(w.Arguments)
	if err != nil {
		return err
	}
	r.Arguments = args
	return nil
}

// Failure is the error a terminal run ended with.
type Failure struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// StatusReport is the caller-facing view of a run.
type StatusReport struct {
	ThreadID            string           `json:"thread_id"`
	RunID               string           `json:"run_id"`
	EmployeeID          string           `json:"employee_id"`
	Status              Status           `json:"status"`
	Response            string           `json:"response,omitempty"`
	ResponseUnavailable bool             `json:"response_unavailable,omitempty"`
	RequiredToolCalls   []ToolCallReport `json:"required_tool_calls,omitempty"`
	PendingToolCalls    int              `json:"pending_tool_calls"`
	PendingToolCallIDs  []string         `json:"pending_tool_call_ids,omitempty"`
	Error               *Failure         `json:"error,omitempty"`
}

// PollRunStatus fetches the run and reports it. Tool calls of a run in
// requires_action are registered before the report is returned, so a
// webhook delivered right after this call always finds them.
func (o *Orchestrator) PollRunStatus(ctx context.Context, threadID, runID, employeeID string) (*StatusReport, error) {
	threadID = strings.TrimSpace(threadID)
	runID = strings.TrimSpace(runID)
	employeeID = strings.TrimSpace(employeeID)
	if err := requireFields("thread_id", threadID, "run_id", runID, "employee_id", employeeID); err != nil {
		return nil, err
	}
	emp, err := o.employees.Require(employeeID)
	if err != nil {
		return nil, err
	}
	if err := o.isolation.Validate(threadID, emp.ID); err != nil {
		return nil, err
	}

	r, err := o.runtime.GetRun(ctx, threadID, runID)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "get run failed", err)
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "unrecognized run status", err)
	}

	report := &StatusReport{ThreadID: threadID, RunID: runID, EmployeeID: emp.ID, Status: status}

	switch status {
	case StatusCompleted:
		msg, err := o.runtime.GetLatestMessage(ctx, threadID)
		if err != nil || msg == nil {
			logger.Warn("completed run response unavailable", "thread", threadID, "run", runID, "err", err)
			report.Response = runtimecfg.RunCompletedFallbackMessage
			report.ResponseUnavailable = true
		} else {
			report.Response = msg.Content
		}
	case StatusRequiresAction:
		calls, err := o.registerStep(emp.ID, threadID, r)
		if err != nil {
			return nil, err
		}
		report.RequiredToolCalls = calls
	case StatusFailed:
		report.Error = &Failure{Message: "run failed"}
		if r.LastError != nil {
			report.Error.Code = r.LastError.Code
			if r.LastError.Message != "" {
				report.Error.Message = r.LastError.Message
			}
		}
	case StatusCancelled:
		report.Error = &Failure{Message: runtimecfg.RunTerminalCancelledMessage}
	case StatusExpired:
		report.Error = &Failure{Message: runtimecfg.RunTerminalExpiredMessage}
	case StatusIncomplete:
		report.Error = &Failure{Message: runtimecfg.RunTerminalIncompleteMessage}
	case StatusCreated, StatusQueued, StatusInProgress, StatusCancelling:
	}

	if status.Terminal() {
		o.finishStep(threadID, runID, status)
	}

	live := o.pending.ListForRun(threadID, runID)
	report.PendingToolCalls = len(live)
	if len(live) > 0 {
		ids := make(map[string]bool, len(live))
		for _, c := range live {
			report.PendingToolCallIDs = append(report.PendingToolCallIDs, c.ToolCallID)
			ids[c.ToolCallID] = true
		}
		for i := range report.RequiredToolCalls {
			report.RequiredToolCalls[i].Pending = ids[report.RequiredToolCalls[i].ID]
		}
	}
	return report, nil
}

// registerStep registers every tool call of the run's current action step.
// Calls already answered are skipped by the registry.
func (o *Orchestrator) registerStep(employeeID, threadID string, r *provider.Run) ([]ToolCallReport, error) {
	specs := make([]pending.Spec, 0, len(r.ToolCalls))
	reports := make([]ToolCallReport, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		rep := ToolCallReport{ID: tc.ID, Function: tc.Function.Name, RawArguments: tc.Function.Arguments}
		args, err := o.parser.Parse(tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			rep.ParseError = err.Error()
			logger.Warn("tool call arguments rejected",
				"thread", threadID, "run", r.ID, "toolCall", tc.ID, "function", tc.Function.Name, "err", err)
		} else {
			rep.Arguments = args
		}
		reports = append(reports, rep)
		specs = append(specs, pending.Spec{
			ToolCallID:   tc.ID,
			FunctionName: tc.Function.Name,
			Arguments:    args,
			RawArguments: tc.Function.Arguments,
		})
	}
	if len(specs) == 0 {
		return reports, nil
	}
	if _, err := o.pending.RegisterBatch(employeeID, threadID, r.ID, specs); err != nil {
		if errors.Is(err, pending.ErrRegistryFull) {
			logger.Error("pending registry full", "employee", employeeID, "thread", threadID, "run", r.ID)
		}
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "register tool calls failed", err)
	}
	return reports, nil
}

func requireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return bridgeerr.Newf(bridgeerr.KindMissingFields, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
