package run

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/provider"
	"github.com/linanwx/leadbridge/provider/providertest"
	"github.com/linanwx/leadbridge/thread"
	"github.com/linanwx/leadbridge/toolargs"
)

type recorder struct {
	mu    sync.Mutex
	convs []Conversation
}

func (r *recorder) RecordConversation(_ context.Context, c Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs = append(r.convs, c)
	return nil
}

type harness struct {
	orch     *Orchestrator
	runtime  *providertest.Fake
	registry *pending.Registry
	recorder *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		runtime:  providertest.New(),
		registry: pending.NewRegistry(),
		recorder: &recorder{},
	}
	h.orch = NewOrchestrator(Config{
		Runtime: h.runtime,
		Employees: employee.NewDirectory([]config.EmployeeConfig{
			{ID: "alice", Name: "Alice", AssistantID: "asst_alice1"},
			{ID: "brenden", Name: "Brenden", AssistantID: "asst_brenden1"},
			{ID: "carol", Name: "Carol", AssistantID: "asst_placeholder"},
		}),
		Isolation:     thread.NewIsolation(),
		Pending:       h.registry,
		Parser:        toolargs.NewParser([]string{"lookup_weather"}),
		Conversations: h.recorder,
	})
	return h
}

// startWithAction starts a conversation for alice and moves its run into
// requires_action with the given calls.
func (h *harness) startWithAction(t *testing.T, calls ...provider.ToolCall) *StartResult {
	t.Helper()
	res, err := h.orch.StartConversation(context.Background(), "alice", "find florists in Austin")
	require.NoError(t, err)
	h.runtime.RequireAction(res.ThreadID, res.RunID, calls...)
	return res
}

func TestStartConversation(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)
	require.Equal(t, "thread_1", res.ThreadID)
	require.Equal(t, "run_1", res.RunID)
	require.Equal(t, StatusQueued, res.Status)
	require.Equal(t, "Alice", res.Employee.Name)
	require.Equal(t, []string{"hello"}, h.runtime.Prompts["thread_1"])

	require.Len(t, h.recorder.convs, 1)
	require.Equal(t, "alice", h.recorder.convs[0].EmployeeID)
}

func TestStartConversationRejectsUnconfiguredEmployee(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.StartConversation(context.Background(), "carol", "hello")
	require.ErrorIs(t, err, bridgeerr.ErrEmployeeNotConfigured)
	_, err = h.orch.StartConversation(context.Background(), "dave", "hello")
	require.ErrorIs(t, err, bridgeerr.ErrEmployeeNotConfigured)
	require.Empty(t, h.runtime.Prompts)
}

func TestStartConversationMissingFields(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.StartConversation(context.Background(), "alice", "   ")
	require.ErrorIs(t, err, bridgeerr.ErrMissingFields)
	require.Contains(t, bridgeerr.DetailOf(err), "message")
}

func TestStartConversationRuntimeDown(t *testing.T) {
	h := newHarness(t)
	h.runtime.FailCreateThread = true

	_, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.ErrorIs(t, err, bridgeerr.ErrRuntimeUnavailable)
}

func TestPollRejectsOtherEmployeesThread(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)

	_, err = h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "brenden")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)
}

func TestPollCompleted(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)
	h.runtime.SetRun(res.ThreadID, provider.Run{ID: res.RunID, Status: "completed"})
	h.runtime.SetLatestMessage(res.ThreadID, "Found 3 florists.")

	report, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, report.Status)
	require.Equal(t, "Found 3 florists.", report.Response)
	require.False(t, report.ResponseUnavailable)
}

func TestPollCompletedFallsBackWhenMessageUnavailable(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)
	h.runtime.SetRun(res.ThreadID, provider.Run{ID: res.RunID, Status: "completed"})
	h.runtime.FailMessages = true

	report, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, report.Status)
	require.Equal(t, runtimecfg.RunCompletedFallbackMessage, report.Response)
	require.True(t, report.ResponseUnavailable)
}

func TestPollTerminalFailures(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)

	h.runtime.SetRun(res.ThreadID, provider.Run{
		ID:        res.RunID,
		Status:    "failed",
		LastError: &provider.RunError{Code: "rate_limit_exceeded", Message: "slow down"},
	})
	report, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, &Failure{Code: "rate_limit_exceeded", Message: "slow down"}, report.Error)

	h.runtime.SetRun(res.ThreadID, provider.Run{ID: res.RunID, Status: "expired"})
	report, err = h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, report.Status)
	require.Empty(t, report.Error.Code)
	require.NotEmpty(t, report.Error.Message)
}

func TestPollRuntimeDown(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)
	h.runtime.FailGetRun = true

	_, err = h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.ErrorIs(t, err, bridgeerr.ErrRuntimeUnavailable)
}

func TestPollMissingFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.PollRunStatus(context.Background(), "thread_1", "", "")
	require.ErrorIs(t, err, bridgeerr.ErrMissingFields)
	require.Contains(t, bridgeerr.DetailOf(err), "run_id")
	require.Contains(t, bridgeerr.DetailOf(err), "employee_id")
}

func TestPollRegistersRequiredToolCalls(t *testing.T) {
	h := newHarness(t)
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists","location":"Austin"}`),
		providertest.FunctionCall("call_2", "lookup_weather", `{"city":"Austin"}`),
		providertest.FunctionCall("call_3", "delete_everything", `{}`),
	)

	report, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusRequiresAction, report.Status)
	require.Equal(t, 3, report.PendingToolCalls)
	require.Len(t, report.RequiredToolCalls, 3)

	require.Equal(t, toolargs.LeadSearch{Query: "florists", Location: "Austin"}, report.RequiredToolCalls[0].Arguments)
	require.Equal(t, toolargs.KindRaw, report.RequiredToolCalls[1].Arguments.Kind())
	require.Nil(t, report.RequiredToolCalls[2].Arguments)
	require.NotEmpty(t, report.RequiredToolCalls[2].ParseError)
	for _, c := range report.RequiredToolCalls {
		require.True(t, c.Pending)
	}

	// Polling again does not duplicate entries.
	_, err = h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, h.registry.Len())
}

func TestPartialStepIsBufferedUntilComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"nurseries"}`),
	)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	acc, err := h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "[]")
	require.NoError(t, err)
	require.False(t, acc.Submitted)
	require.Equal(t, 1, acc.Awaiting)
	require.Empty(t, h.runtime.SubmissionsFor(res.ThreadID, res.RunID))
	require.Equal(t, 1, h.orch.Buffered(res.ThreadID, res.RunID))

	// The runtime still reports both calls; only the unanswered one is pending.
	report, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, report.PendingToolCalls)
	require.Equal(t, []string{"call_2"}, report.PendingToolCallIDs)
	require.False(t, report.RequiredToolCalls[0].Pending)
	require.True(t, report.RequiredToolCalls[1].Pending)

	acc, err = h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, `[{"name":"Bloom"}]`)
	require.NoError(t, err)
	require.True(t, acc.Submitted)
	require.Equal(t, StatusInProgress, acc.RunStatus)
	require.Equal(t, "alice", acc.Call.EmployeeID)

	subs := h.runtime.SubmissionsFor(res.ThreadID, res.RunID)
	require.Len(t, subs, 1)
	require.Equal(t, []provider.ToolOutput{
		{ToolCallID: "call_1", Output: "[]"},
		{ToolCallID: "call_2", Output: `[{"name":"Bloom"}]`},
	}, subs[0].Outputs)
	require.Equal(t, 0, h.orch.Buffered(res.ThreadID, res.RunID))
}

func TestAcceptUnknownToolCall(t *testing.T) {
	h := newHarness(t)
	res := h.startWithAction(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	_, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	_, err = h.orch.AcceptToolOutput(context.Background(), "alice", "call_9", res.ThreadID, res.RunID, "[]")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	_, err = h.orch.AcceptToolOutput(context.Background(), "alice", "call_1", res.ThreadID, "run_other", "[]")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	require.Equal(t, 1, h.registry.Len())
}

func TestAcceptTwiceIsUnknown(t *testing.T) {
	h := newHarness(t)
	res := h.startWithAction(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	_, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	_, err = h.orch.AcceptToolOutput(context.Background(), "alice", "call_1", res.ThreadID, res.RunID, "[]")
	require.NoError(t, err)
	_, err = h.orch.AcceptToolOutput(context.Background(), "alice", "call_1", res.ThreadID, res.RunID, "[]")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	require.Len(t, h.runtime.SubmissionsFor(res.ThreadID, res.RunID), 1)
}

func TestSubmitFailureReinstatesCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"nurseries"}`),
	)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "one")
	require.NoError(t, err)

	h.runtime.FailSubmit = true
	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, "two")
	require.ErrorIs(t, err, bridgeerr.ErrRuntimeUnavailable)
	require.Equal(t, []string{"call_2"}, ids(h.registry.ListForRun(res.ThreadID, res.RunID)))
	require.Equal(t, 1, h.orch.Buffered(res.ThreadID, res.RunID))

	h.runtime.FailSubmit = false
	acc, err := h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, "two")
	require.NoError(t, err)
	require.True(t, acc.Submitted)
	subs := h.runtime.SubmissionsFor(res.ThreadID, res.RunID)
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Outputs, 2)
}

func TestConcurrentDeliveriesSubmitOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 12
	calls := make([]provider.ToolCall, n)
	for i := range calls {
		calls[i] = providertest.FunctionCall(fmt.Sprintf("call_%d", i), "search_leads", `{"query":"florists"}`)
	}
	res := h.startWithAction(t, calls...)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.orch.AcceptToolOutput(ctx, "alice", fmt.Sprintf("call_%d", i), res.ThreadID, res.RunID, "[]")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	subs := h.runtime.SubmissionsFor(res.ThreadID, res.RunID)
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Outputs, n)
	require.Equal(t, 0, h.registry.Len())
}

func TestSweepResetsPartiallyAnsweredStep(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		clock = clock.Add(d)
		mu.Unlock()
	}
	h := newHarness(t)
	h.registry = pending.NewRegistry(pending.WithClock(now))
	h.orch.pending = h.registry
	ctx := context.Background()

	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"nurseries"}`),
	)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	advance(20 * time.Minute)
	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "one")
	require.NoError(t, err)

	advance(11 * time.Minute)
	expired := h.orch.Sweep(30 * time.Minute)
	require.Equal(t, []string{"call_2"}, ids(expired))
	require.Equal(t, 0, h.orch.Buffered(res.ThreadID, res.RunID))

	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, "two")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)

	// The run still waits on both calls, so a new poll brings back the whole step.
	report, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"call_1", "call_2"}, report.PendingToolCallIDs)

	acc, err := h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "one")
	require.NoError(t, err)
	require.False(t, acc.Submitted)
	acc, err = h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, "two")
	require.NoError(t, err)
	require.True(t, acc.Submitted)

	subs := h.runtime.SubmissionsFor(res.ThreadID, res.RunID)
	require.Len(t, subs, 1)
	require.Equal(t, []provider.ToolOutput{
		{ToolCallID: "call_1", Output: "one"},
		{ToolCallID: "call_2", Output: "two"},
	}, subs[0].Outputs)
}

func TestSweepKeepsYoungSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"nurseries"}`),
	)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "one")
	require.NoError(t, err)

	require.Empty(t, h.orch.Sweep(time.Hour))
	require.Equal(t, 1, h.orch.Buffered(res.ThreadID, res.RunID))
	require.Equal(t, []string{"call_2"}, ids(h.registry.ListForRun(res.ThreadID, res.RunID)))
}

func TestAcceptRejectsOtherEmployeesCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.startWithAction(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	_, err = h.orch.AcceptToolOutput(ctx, "brenden", "call_1", res.ThreadID, res.RunID, "[]")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)
	require.Equal(t, []string{"call_1"}, ids(h.registry.ListForRun(res.ThreadID, res.RunID)))
	require.Empty(t, h.runtime.SubmissionsFor(res.ThreadID, res.RunID))

	_, err = h.orch.AcceptToolOutput(ctx, "", "call_1", res.ThreadID, res.RunID, "[]")
	require.ErrorIs(t, err, bridgeerr.ErrMissingFields)

	acc, err := h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "[]")
	require.NoError(t, err)
	require.True(t, acc.Submitted)
}

func TestTerminalRunDropsPendingCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"nurseries"}`),
	)
	_, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_1", res.ThreadID, res.RunID, "one")
	require.NoError(t, err)

	h.runtime.SetRun(res.ThreadID, provider.Run{ID: res.RunID, Status: "expired"})
	report, err := h.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, report.Status)
	require.Zero(t, report.PendingToolCalls)
	require.Empty(t, report.PendingToolCallIDs)
	require.Zero(t, h.registry.Len())
	require.Equal(t, 0, h.orch.Buffered(res.ThreadID, res.RunID))

	_, err = h.orch.AcceptToolOutput(ctx, "alice", "call_2", res.ThreadID, res.RunID, "two")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	require.Empty(t, h.runtime.SubmissionsFor(res.ThreadID, res.RunID))
}

func TestStatusReportDecodesArguments(t *testing.T) {
	h := newHarness(t)
	res := h.startWithAction(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "lookup_weather", `{"city":"Austin"}`),
		providertest.FunctionCall("call_3", "delete_everything", `{}`),
	)
	report, err := h.orch.PollRunStatus(context.Background(), res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)

	b, err := json.Marshal(report)
	require.NoError(t, err)
	require.Equal(t, "lead_search", gjson.GetBytes(b, "required_tool_calls.0.arguments.kind").String())
	require.False(t, gjson.GetBytes(b, "required_tool_calls.2.arguments").Exists())

	var back StatusReport
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, toolargs.LeadSearch{Query: "florists"}, back.RequiredToolCalls[0].Arguments)
	require.Equal(t, toolargs.KindRaw, back.RequiredToolCalls[1].Arguments.Kind())
	require.Nil(t, back.RequiredToolCalls[2].Arguments)
	require.Equal(t, report.RequiredToolCalls[2].ParseError, back.RequiredToolCalls[2].ParseError)
	require.Equal(t, report.PendingToolCallIDs, back.PendingToolCallIDs)
}

func TestContinueConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.StartConversation(ctx, "alice", "hello")
	require.NoError(t, err)

	next, err := h.orch.ContinueConversation(ctx, res.ThreadID, "alice", "and in Dallas?")
	require.NoError(t, err)
	require.Equal(t, res.ThreadID, next.ThreadID)
	require.NotEqual(t, res.RunID, next.RunID)
	require.Equal(t, []string{"hello", "and in Dallas?"}, h.runtime.Prompts[res.ThreadID])

	_, err = h.orch.ContinueConversation(ctx, res.ThreadID, "brenden", "let me in")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)
	require.Len(t, h.runtime.Prompts[res.ThreadID], 2)
}

func TestStartWithImmediateActionRegistersCalls(t *testing.T) {
	h := newHarness(t)
	h.runtime.InitialStatus = "requires_action"

	res, err := h.orch.StartConversation(context.Background(), "alice", "hello")
	require.NoError(t, err)
	require.Equal(t, StatusRequiresAction, res.Status)
	// The fake reports no tool calls for a freshly created run.
	require.Equal(t, 0, h.registry.Len())
}

func ids(calls []pending.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.ToolCallID
	}
	return out
}
