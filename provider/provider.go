// Package provider defines the assistant runtime interface and common types.
package provider

import "context"

// Runtime is the remote assistant service that owns threads and runs.
type Runtime interface {
	// CreateThread opens a new conversation thread.
	CreateThread(ctx context.Context) (string, error)
	// CreateRun appends a user message to the thread and starts a run of the
	// given assistant against it.
	CreateRun(ctx context.Context, threadID, assistantID, message string) (*Run, error)
	// GetRun returns the current state of a run.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	// GetLatestMessage returns the newest message on the thread.
	GetLatestMessage(ctx context.Context, threadID string) (*Message, error)
	// SubmitToolOutputs hands tool results back so a suspended run can resume.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)
}

// Run is a snapshot of one assistant run. Status is the raw runtime value.
type Run struct {
	ID        string
	ThreadID  string
	Status    string
	ToolCalls []ToolCall // set when Status is requires_action
	LastError *RunError
}

// RunError is the runtime's failure report for a run.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ToolCall represents a tool invocation requested by the runtime.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call within a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// Message is a thread message reduced to its text.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolOutput answers one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
