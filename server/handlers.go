package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/lead"
	"github.com/linanwx/leadbridge/webhook"
)

// --- Conversations ---

type messageRequest struct {
	EmployeeID string `json:"employee_id,omitempty"`
	Message    string `json:"message"`
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	res, err := s.orch.StartConversation(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, res)
}

func (s *Server) handleContinueConversation(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	res, err := s.orch.ContinueConversation(r.Context(), r.PathValue("thread_id"), req.EmployeeID, req.Message)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, res)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := s.orch.PollRunStatus(r.Context(), q.Get("thread_id"), q.Get("run_id"), q.Get("employee_id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// --- Webhooks ---

// toolOutputRequest accepts output either as a string or as any JSON value,
// which is forwarded in its raw form.
type toolOutputRequest struct {
	ToolCallID string          `json:"tool_call_id"`
	Output     json.RawMessage `json:"output"`
	ThreadID   string          `json:"thread_id"`
	RunID      string          `json:"run_id"`
}

func (req toolOutputRequest) payload() webhook.Payload {
	p := webhook.Payload{ToolCallID: req.ToolCallID, ThreadID: req.ThreadID, RunID: req.RunID}
	raw := strings.TrimSpace(string(req.Output))
	switch {
	case raw == "" || raw == "null":
	case strings.HasPrefix(raw, `"`):
		if err := json.Unmarshal(req.Output, &p.Output); err != nil {
			p.Output = raw
		}
	default:
		p.Output = raw
	}
	return p
}

func (s *Server) handleToolOutput(w http.ResponseWriter, r *http.Request) {
	var req toolOutputRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	res, err := s.bridge.Deliver(r.Context(), req.payload(), r.PathValue("employee_id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// --- Employees ---

type employeeView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Configured bool   `json:"configured"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	list := s.employees.List()
	out := make([]employeeView, len(list))
	for i, e := range list {
		out[i] = employeeView{ID: e.ID, Name: e.Name, Role: e.Role, Configured: e.Configured(), WebhookURL: e.WebhookURL}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"employees": out})
}

type pendingView struct {
	ToolCallID   string  `json:"tool_call_id"`
	FunctionName string  `json:"function"`
	ThreadID     string  `json:"thread_id"`
	RunID        string  `json:"run_id"`
	CreatedAt    string  `json:"created_at"`
	AgeSeconds   float64 `json:"age_seconds"`
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.employees.Exists(id) {
		s.errorResponse(w, r, bridgeerr.Newf(bridgeerr.KindEmployeeNotConfigured, "employee %q is not configured", id))
		return
	}
	calls := s.pending.ListForEmployee(id)
	out := make([]pendingView, len(calls))
	for i, c := range calls {
		out[i] = pendingView{
			ToolCallID:   c.ToolCallID,
			FunctionName: c.FunctionName,
			ThreadID:     c.ThreadID,
			RunID:        c.RunID,
			CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
			AgeSeconds:   c.Age.Seconds(),
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"employee_id": id, "pending": out, "count": len(out)})
}

// --- Leads ---

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q, err := leadQuery(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	page, err := s.leads.List(r.Context(), q)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}

func leadQuery(r *http.Request) (lead.Query, error) {
	v := r.URL.Query()
	q := lead.Query{EmployeeID: strings.TrimSpace(v.Get("employee_id"))}
	if raw := v.Get("validated"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, bridgeerr.Newf(bridgeerr.KindInvalidPayload, "validated must be a boolean, got %q", raw)
		}
		q.Validated = &b
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"limit", &q.Limit}} {
		raw := v.Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, bridgeerr.Newf(bridgeerr.KindInvalidPayload, "%s must be a positive integer, got %q", f.name, raw)
		}
		*f.dst = n
	}
	return q, nil
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.leads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	var u lead.ProgressUpdate
	if err := s.decodeBody(w, r, &u); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	l, err := s.leads.UpdateProgress(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := s.leads.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.health()
	status := http.StatusOK
	if snap.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.jsonResponse(w, status, snap)
}
