package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/lead"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/provider"
	"github.com/linanwx/leadbridge/provider/providertest"
	"github.com/linanwx/leadbridge/run"
	"github.com/linanwx/leadbridge/store/sqlite"
	"github.com/linanwx/leadbridge/thread"
	"github.com/linanwx/leadbridge/toolargs"
)

type fixture struct {
	bridge   *Bridge
	orch     *run.Orchestrator
	runtime  *providertest.Fake
	registry *pending.Registry
	leads    *lead.Pipeline
}

func newFixture(t *testing.T, extractor LeadExtractor) *fixture {
	t.Helper()
	f := &fixture{runtime: providertest.New(), registry: pending.NewRegistry()}
	dir := employee.NewDirectory([]config.EmployeeConfig{
		{ID: "alice", Name: "Alice", AssistantID: "asst_alice1"},
		{ID: "brenden", Name: "Brenden", AssistantID: "asst_brenden1"},
	})
	iso := thread.NewIsolation()
	f.orch = run.NewOrchestrator(run.Config{
		Runtime:   f.runtime,
		Employees: dir,
		Isolation: iso,
		Pending:   f.registry,
		Parser:    toolargs.NewParser(nil),
	})

	if extractor == nil {
		rs, err := sqlite.New(t.TempDir() + "/bridge.db")
		require.NoError(t, err)
		t.Cleanup(func() { rs.Close() })
		f.leads = lead.NewPipeline(rs, nil)
		extractor = f.leads
	}
	f.bridge = NewBridge(Config{
		Employees:    dir,
		Isolation:    iso,
		Orchestrator: f.orch,
		Leads:        extractor,
		LeadTools:    []string{"search_leads"},
	})
	return f
}

// pendingRun starts alice's conversation and polls it once the runtime asks
// for the given tool calls.
func (f *fixture) pendingRun(t *testing.T, calls ...provider.ToolCall) (threadID, runID string) {
	t.Helper()
	ctx := context.Background()
	res, err := f.orch.StartConversation(ctx, "alice", "find florists")
	require.NoError(t, err)
	f.runtime.RequireAction(res.ThreadID, res.RunID, calls...)
	_, err = f.orch.PollRunStatus(ctx, res.ThreadID, res.RunID, "alice")
	require.NoError(t, err)
	return res.ThreadID, res.RunID
}

func TestDeliverSubmitsAndExtractsLeads(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))

	res, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1",
		Output:     `[{"title":"Bloom & Co","website":"w.com","email":"a@b.com","city":"Austin"}]`,
		ThreadID:   threadID,
		RunID:      runID,
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "ok", res.Status)
	require.True(t, res.Submitted)
	require.Equal(t, 1, res.LeadsCreated)
	require.Empty(t, res.LeadError)

	subs := f.runtime.SubmissionsFor(threadID, runID)
	require.Len(t, subs, 1)
	require.Equal(t, "call_1", subs[0].Outputs[0].ToolCallID)

	page, err := f.leads.List(context.Background(), lead.Query{EmployeeID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "call_1", page.Leads[0].ToolCallID)
}

func TestDeliverRejectsOtherEmployee(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	before := keys(f.registry.ListForRun(threadID, runID))

	_, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1", Output: "[]", ThreadID: threadID, RunID: runID,
	}, "brenden")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)
	require.Equal(t, 403, bridgeerr.HTTPStatus(err))

	require.Equal(t, before, keys(f.registry.ListForRun(threadID, runID)))
	require.Empty(t, f.runtime.SubmissionsFor(threadID, runID))
}

func TestDeliverRejectsCallOwnedByAnotherEmployee(t *testing.T) {
	f := newFixture(t, nil)
	// An unbound thread passes the ownership check; the call itself still
	// belongs to alice.
	f.runtime.RequireAction("thread_orphan", "run_1",
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	_, err := f.registry.Register("alice", "thread_orphan", "run_1", "call_1", "search_leads", nil)
	require.NoError(t, err)
	p := Payload{ToolCallID: "call_1", Output: "[]", ThreadID: "thread_orphan", RunID: "run_1"}

	_, err = f.bridge.Deliver(context.Background(), p, "brenden")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)
	require.Equal(t, 1, f.registry.Len())
	require.Empty(t, f.runtime.SubmissionsFor("thread_orphan", "run_1"))

	res, err := f.bridge.Deliver(context.Background(), p, "alice")
	require.NoError(t, err)
	require.True(t, res.Submitted)
}

func TestDeliverMissingFields(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.bridge.Deliver(context.Background(), Payload{ToolCallID: "call_1", ThreadID: " "}, "alice")
	require.ErrorIs(t, err, bridgeerr.ErrMissingFields)
	require.Equal(t, "missing required fields: output, thread_id, run_id", bridgeerr.DetailOf(err))
}

func TestDeliverUnknownEmployee(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1", Output: "[]", ThreadID: "thread_1", RunID: "run_1",
	}, "mallory")
	require.ErrorIs(t, err, bridgeerr.ErrEmployeeNotConfigured)
}

func TestDeliverReplayIsUnknown(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	p := Payload{ToolCallID: "call_1", Output: "[]", ThreadID: threadID, RunID: runID}

	_, err := f.bridge.Deliver(context.Background(), p, "alice")
	require.NoError(t, err)
	_, err = f.bridge.Deliver(context.Background(), p, "alice")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	require.Len(t, f.runtime.SubmissionsFor(threadID, runID), 1)
}

func TestDeliverForgedRunIsUnknown(t *testing.T) {
	f := newFixture(t, nil)
	threadID, _ := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))

	_, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1", Output: "[]", ThreadID: threadID, RunID: "run_forged",
	}, "alice")
	require.ErrorIs(t, err, bridgeerr.ErrUnknownToolCall)
	require.Equal(t, 1, f.registry.Len())
}

func TestDeliverPartialStepAwaits(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t,
		providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`),
		providertest.FunctionCall("call_2", "send_outreach", `{"lead_id":"l1","message":"hi"}`),
	)

	res, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_2", Output: "sent", ThreadID: threadID, RunID: runID,
	}, "alice")
	require.NoError(t, err)
	require.False(t, res.Submitted)
	require.Equal(t, 1, res.Awaiting)
	require.Zero(t, res.LeadsCreated)

	report, err := f.orch.PollRunStatus(context.Background(), threadID, runID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, report.PendingToolCalls)

	res, err = f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1", Output: "[]", ThreadID: threadID, RunID: runID,
	}, "alice")
	require.NoError(t, err)
	require.True(t, res.Submitted)
	require.Len(t, f.runtime.SubmissionsFor(threadID, runID)[0].Outputs, 2)
}

func TestLeadFailureDoesNotUndoSubmission(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))

	res, err := f.bridge.Deliver(context.Background(), Payload{
		ToolCallID: "call_1", Output: "no results today", ThreadID: threadID, RunID: runID,
	}, "alice")
	require.NoError(t, err)
	require.True(t, res.Submitted)
	require.NotEmpty(t, res.LeadError)
	require.Len(t, f.runtime.SubmissionsFor(threadID, runID), 1)
}

type stubExtractor struct {
	calls int
	err   error
}

func (s *stubExtractor) Extract(context.Context, string, lead.Source) (*lead.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &lead.Result{Count: 0}, nil
}

func TestOnlyLeadToolsReachPipeline(t *testing.T) {
	stub := &stubExtractor{err: errors.New("boom")}
	f := newFixture(t, stub)
	threadID, runID := f.pendingRun(t,
		providertest.FunctionCall("call_1", "send_outreach", `{"lead_id":"l1","message":"hi"}`),
		providertest.FunctionCall("call_2", "search_leads", `{"query":"florists"}`),
	)

	res, err := f.bridge.Deliver(context.Background(), Payload{ToolCallID: "call_1", Output: "sent", ThreadID: threadID, RunID: runID}, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, stub.calls)
	require.Empty(t, res.LeadError)

	res, err = f.bridge.Deliver(context.Background(), Payload{ToolCallID: "call_2", Output: "[]", ThreadID: threadID, RunID: runID}, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)
	require.Equal(t, "internal error", res.LeadError)
}

func TestSubmitFailureCanBeRetried(t *testing.T) {
	f := newFixture(t, nil)
	threadID, runID := f.pendingRun(t, providertest.FunctionCall("call_1", "search_leads", `{"query":"florists"}`))
	p := Payload{ToolCallID: "call_1", Output: `[{"name":"A"}]`, ThreadID: threadID, RunID: runID}

	f.runtime.FailSubmit = true
	_, err := f.bridge.Deliver(context.Background(), p, "alice")
	require.ErrorIs(t, err, bridgeerr.ErrRuntimeUnavailable)

	page, err := f.leads.List(context.Background(), lead.Query{})
	require.NoError(t, err)
	require.Equal(t, 0, page.Total)

	f.runtime.FailSubmit = false
	res, err := f.bridge.Deliver(context.Background(), p, "alice")
	require.NoError(t, err)
	require.True(t, res.Submitted)
	require.Equal(t, 1, res.LeadsCreated)
}

func keys(calls []pending.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.CorrelationKey
	}
	return out
}
