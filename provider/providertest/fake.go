// Package providertest provides an in-memory assistant runtime for tests.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linanwx/leadbridge/provider"
)

// ErrUnavailable is the error injected by Fail* fields.
var ErrUnavailable = errors.New("fake runtime unavailable")

// Submission records one SubmitToolOutputs call.
type Submission struct {
	ThreadID string
	RunID    string
	Outputs  []provider.ToolOutput
}

// Fake is a scriptable provider.Runtime.
type Fake struct {
	mu sync.Mutex

	threadSeq int
	runSeq    int

	runs     map[string]*provider.Run // key thread/run
	messages map[string]*provider.Message

	// InitialStatus is the status of newly created runs ("queued" when empty).
	InitialStatus string

	FailCreateThread bool
	FailCreateRun    bool
	FailGetRun       bool
	FailMessages     bool
	FailSubmit       bool

	Submissions []Submission
	Prompts     map[string][]string // thread -> user messages
}

var _ provider.Runtime = (*Fake)(nil)

// New returns an empty fake runtime.
func New() *Fake {
	return &Fake{
		runs:     make(map[string]*provider.Run),
		messages: make(map[string]*provider.Message),
		Prompts:  make(map[string][]string),
	}
}

func runKey(threadID, runID string) string { return threadID + "/" + runID }

// CreateThread implements provider.Runtime.
func (f *Fake) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateThread {
		return "", ErrUnavailable
	}
	f.threadSeq++
	return fmt.Sprintf("thread_%d", f.threadSeq), nil
}

// CreateRun implements provider.Runtime.
func (f *Fake) CreateRun(ctx context.Context, threadID, assistantID, message string) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateRun {
		return nil, ErrUnavailable
	}
	f.runSeq++
	status := f.InitialStatus
	if status == "" {
		status = "queued"
	}
	run := &provider.Run{ID: fmt.Sprintf("run_%d", f.runSeq), ThreadID: threadID, Status: status}
	f.runs[runKey(threadID, run.ID)] = run
	f.Prompts[threadID] = append(f.Prompts[threadID], message)
	cp := *run
	return &cp, nil
}

// GetRun implements provider.Runtime.
func (f *Fake) GetRun(ctx context.Context, threadID, runID string) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGetRun {
		return nil, ErrUnavailable
	}
	run, ok := f.runs[runKey(threadID, runID)]
	if !ok {
		return nil, fmt.Errorf("run %s not found on thread %s", runID, threadID)
	}
	cp := *run
	cp.ToolCalls = append([]provider.ToolCall(nil), run.ToolCalls...)
	return &cp, nil
}

// GetLatestMessage implements provider.Runtime.
func (f *Fake) GetLatestMessage(ctx context.Context, threadID string) (*provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailMessages {
		return nil, ErrUnavailable
	}
	msg, ok := f.messages[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s has no messages", threadID)
	}
	cp := *msg
	return &cp, nil
}

// SubmitToolOutputs implements provider.Runtime. The run moves back to
// in_progress.
func (f *Fake) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []provider.ToolOutput) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSubmit {
		return nil, ErrUnavailable
	}
	run, ok := f.runs[runKey(threadID, runID)]
	if !ok {
		return nil, fmt.Errorf("run %s not found on thread %s", runID, threadID)
	}
	f.Submissions = append(f.Submissions, Submission{
		ThreadID: threadID,
		RunID:    runID,
		Outputs:  append([]provider.ToolOutput(nil), outputs...),
	})
	run.Status = "in_progress"
	run.ToolCalls = nil
	cp := *run
	return &cp, nil
}

// SetRun overwrites the state of a run.
func (f *Fake) SetRun(threadID string, run provider.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ThreadID = threadID
	f.runs[runKey(threadID, run.ID)] = &run
}

// RequireAction puts a run into requires_action with the given calls.
func (f *Fake) RequireAction(threadID, runID string, calls ...provider.ToolCall) {
	f.SetRun(threadID, provider.Run{ID: runID, Status: "requires_action", ToolCalls: calls})
}

// SetLatestMessage sets the message returned for threadID.
func (f *Fake) SetLatestMessage(threadID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[threadID] = &provider.Message{ID: "msg_" + threadID, Role: "assistant", Content: content}
}

// SubmissionsFor returns the submissions recorded for a run.
func (f *Fake) SubmissionsFor(threadID, runID string) []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Submission
	for _, s := range f.Submissions {
		if s.ThreadID == threadID && s.RunID == runID {
			out = append(out, s)
		}
	}
	return out
}

// FunctionCall builds a tool call for RequireAction.
func FunctionCall(id, name, arguments string) provider.ToolCall {
	return provider.ToolCall{
		ID:       id,
		Type:     "function",
		Function: provider.FunctionCall{Name: name, Arguments: arguments},
	}
}
