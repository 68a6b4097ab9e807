package run

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/provider"
)

type stepKey struct {
	threadID string
	runID    string
}

// step buffers the outputs of one action step until every call of the step
// has been answered. Its lock serializes resolution and submission for the
// run; closed steps are dropped from the orchestrator and must not be used.
type step struct {
	sem     *semaphore.Weighted
	outputs []provider.ToolOutput
	closed  bool
}

func (s *step) unlock() { s.sem.Release(1) }

func (s *step) put(toolCallID, output string) {
	for i := range s.outputs {
		if s.outputs[i].ToolCallID == toolCallID {
			s.outputs[i].Output = output
			return
		}
	}
	s.outputs = append(s.outputs, provider.ToolOutput{ToolCallID: toolCallID, Output: output})
}

func (s *step) drop(toolCallID string) {
	kept := s.outputs[:0]
	for _, out := range s.outputs {
		if out.ToolCallID != toolCallID {
			kept = append(kept, out)
		}
	}
	s.outputs = kept
}

// lockStep returns the live step for key with its lock held.
func (o *Orchestrator) lockStep(ctx context.Context, key stepKey) (*step, error) {
	for {
		o.mu.Lock()
		st, ok := o.steps[key]
		if !ok {
			st = &step{sem: semaphore.NewWeighted(1)}
			o.steps[key] = st
		}
		o.mu.Unlock()

		if err := st.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		if !st.closed {
			return st, nil
		}
		st.unlock()
	}
}

// close must be called with st locked.
func (o *Orchestrator) close(key stepKey, st *step) {
	st.closed = true
	st.outputs = nil
	o.mu.Lock()
	if o.steps[key] == st {
		delete(o.steps, key)
	}
	o.mu.Unlock()
}

// discard closes st, logging any outputs it still buffered.
func (o *Orchestrator) discard(key stepKey, st *step, reason string) {
	if n := len(st.outputs); n > 0 {
		logger.Warn("discarding buffered tool outputs",
			"thread", key.threadID, "run", key.runID, "count", n, "reason", reason)
	}
	o.close(key, st)
}

// finishStep forgets everything held for a run that reached a terminal
// status: its buffered outputs and its registry entries.
func (o *Orchestrator) finishStep(threadID, runID string, status Status) {
	key := stepKey{threadID, runID}
	st, err := o.lockStep(context.Background(), key)
	if err != nil {
		return
	}
	defer st.unlock()

	for _, c := range o.pending.DropRun(threadID, runID) {
		logger.Warn("dropping pending tool call of finished run",
			"employee", c.EmployeeID, "thread", threadID, "run", runID,
			"toolCall", c.ToolCallID, "function", c.FunctionName, "status", status)
	}
	o.discard(key, st, "run "+string(status))
}

// Acceptance is the outcome of AcceptToolOutput.
type Acceptance struct {
	Call pending.Call
	// Submitted is true when this output completed the step and every
	// buffered output was forwarded to the runtime.
	Submitted bool
	// Awaiting counts calls of the run that are still unanswered.
	Awaiting int
	// RunStatus is the run status returned by the submission.
	RunStatus Status
}

// AcceptToolOutput resolves employeeID's pending call for the triple and
// buffers its output. When no calls of the run remain pending, all buffered
// outputs are submitted in a single call. If that submission fails, the
// call is put back as pending so the same delivery can be retried.
func (o *Orchestrator) AcceptToolOutput(ctx context.Context, employeeID, toolCallID, threadID, runID, output string) (*Acceptance, error) {
	if err := requireFields("employee_id", employeeID); err != nil {
		return nil, err
	}
	key := stepKey{threadID, runID}
	st, err := o.lockStep(ctx, key)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "accept tool output", err)
	}
	defer st.unlock()

	call, err := o.pending.ResolveFor(employeeID, toolCallID, threadID, runID)
	if err != nil {
		if len(st.outputs) == 0 {
			o.close(key, st)
		}
		switch {
		case errors.Is(err, pending.ErrNotFound):
			return nil, bridgeerr.Newf(bridgeerr.KindUnknownToolCall,
				"no pending tool call %s for thread %s run %s", toolCallID, threadID, runID)
		case errors.Is(err, pending.ErrWrongEmployee):
			logger.Security("tool output from an employee that does not own the call",
				"employee", employeeID, "thread", threadID, "run", runID, "toolCall", toolCallID)
			return nil, bridgeerr.Newf(bridgeerr.KindThreadAccessDenied,
				"employee %s cannot answer tool call %s", employeeID, toolCallID)
		}
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "resolve tool call", err)
	}
	st.put(toolCallID, output)

	if awaiting := len(o.pending.ListForRun(threadID, runID)); awaiting > 0 {
		logger.Debug("tool output buffered",
			"thread", threadID, "run", runID, "toolCall", toolCallID, "awaiting", awaiting)
		return &Acceptance{Call: call, Awaiting: awaiting}, nil
	}

	outputs := append([]provider.ToolOutput(nil), st.outputs...)
	start := time.Now()
	r, err := o.runtime.SubmitToolOutputs(ctx, threadID, runID, outputs)
	if err != nil {
		st.drop(toolCallID)
		if rerr := o.pending.Reinstate(call); rerr != nil {
			logger.Error("failed to reinstate tool call", "toolCall", toolCallID, "err", rerr)
		}
		logger.Error("submit tool outputs failed",
			"thread", threadID, "run", runID, "outputs", len(outputs), "err", err)
		return nil, bridgeerr.Wrap(bridgeerr.KindRuntimeUnavailable, "submit tool outputs failed", err)
	}
	o.close(key, st)

	acc := &Acceptance{Call: call, Submitted: true}
	if status, perr := ParseStatus(r.Status); perr == nil {
		acc.RunStatus = status
	} else {
		logger.Warn("submit returned unrecognized run status", "run", runID, "status", r.Status)
	}
	logger.Info("tool outputs submitted",
		"thread", threadID, "run", runID, "outputs", len(outputs),
		"toolCalls", strings.Join(toolCallIDs(outputs), ","), "latency", time.Since(start))
	return acc, nil
}

// Sweep removes pending calls older than maxAge. A run that loses a call
// loses its whole step: buffered outputs are discarded and answered calls
// are forgotten, so the next poll registers every call of the step again.
// Expired calls are returned grouped by run.
func (o *Orchestrator) Sweep(maxAge time.Duration) []pending.Call {
	var expired []pending.Call
	for _, rk := range o.pending.ExpiredRuns(maxAge) {
		expired = append(expired, o.expireStep(rk.ThreadID, rk.RunID, maxAge)...)
	}
	if n := o.pending.PruneResolved(maxAge); n > 0 {
		logger.Debug("pruned resolved tool calls", "count", n)
	}
	return expired
}

func (o *Orchestrator) expireStep(threadID, runID string, maxAge time.Duration) []pending.Call {
	key := stepKey{threadID, runID}
	st, err := o.lockStep(context.Background(), key)
	if err != nil {
		return nil
	}
	defer st.unlock()

	expired := o.pending.SweepRun(threadID, runID, maxAge)
	if len(expired) == 0 {
		if len(st.outputs) == 0 {
			o.close(key, st)
		}
		return nil
	}
	for _, c := range expired {
		logger.Warn("pending tool call expired",
			"employee", c.EmployeeID, "thread", c.ThreadID, "run", c.RunID,
			"toolCall", c.ToolCallID, "function", c.FunctionName, "age", c.Age)
	}
	o.discard(key, st, "expired")
	return expired
}

// Buffered returns the number of answered outputs waiting on the rest of
// their step.
func (o *Orchestrator) Buffered(threadID, runID string) int {
	key := stepKey{threadID, runID}
	o.mu.Lock()
	_, ok := o.steps[key]
	o.mu.Unlock()
	if !ok {
		return 0
	}
	st, err := o.lockStep(context.Background(), key)
	if err != nil {
		return 0
	}
	defer st.unlock()
	n := len(st.outputs)
	if n == 0 {
		o.close(key, st)
	}
	return n
}

func toolCallIDs(outputs []provider.ToolOutput) []string {
	ids := make([]string, len(outputs))
	for i, out := range outputs {
		ids[i] = out.ToolCallID
	}
	return ids
}
