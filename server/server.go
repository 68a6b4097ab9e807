// Package server exposes the bridge over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/internal/health"
	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/lead"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/run"
	"github.com/linanwx/leadbridge/webhook"
)

// Config holds the collaborators served by a Server.
type Config struct {
	Addr         string
	Employees    *employee.Directory
	Orchestrator *run.Orchestrator
	Bridge       *webhook.Bridge
	Leads        *lead.Pipeline
	Pending      *pending.Registry
	Health       func() health.Snapshot // optional
	MaxBodyBytes int64
}

// Server serves the bridge API.
type Server struct {
	addr         string
	employees    *employee.Directory
	orch         *run.Orchestrator
	bridge       *webhook.Bridge
	leads        *lead.Pipeline
	pending      *pending.Registry
	health       func() health.Snapshot
	maxBodyBytes int64

	srv *http.Server
	wg  sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		addr:         cfg.Addr,
		employees:    cfg.Employees,
		orch:         cfg.Orchestrator,
		bridge:       cfg.Bridge,
		leads:        cfg.Leads,
		pending:      cfg.Pending,
		health:       cfg.Health,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if s.addr == "" {
		s.addr = runtimecfg.ServerDefaultAddr
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = runtimecfg.ServerMaxRequestBodyBytes
	}
	if s.health == nil {
		s.health = func() health.Snapshot { return health.Collect(health.Options{}) }
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/employees/{id}/conversations", s.handleStartConversation)
	mux.HandleFunc("POST /api/conversations/{thread_id}/messages", s.handleContinueConversation)
	mux.HandleFunc("GET /api/runs/status", s.handleRunStatus)

	mux.HandleFunc("POST /api/webhooks/{employee_id}/tool-output", s.handleToolOutput)

	mux.HandleFunc("GET /api/employees", s.handleListEmployees)
	mux.HandleFunc("GET /api/employees/{id}/pending", s.handleListPending)

	mux.HandleFunc("GET /api/leads", s.handleListLeads)
	mux.HandleFunc("GET /api/leads/{id}", s.handleGetLead)
	mux.HandleFunc("PATCH /api/leads/{id}", s.handleUpdateLead)
	mux.HandleFunc("DELETE /api/leads/{id}", s.handleDeleteLead)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.requestLog(mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: runtimecfg.ServerReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server listen failed on %s: %w", s.addr, err)
	}
	logger.Info("server started", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if serveErr := s.srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("server error", "err", serveErr)
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), runtimecfg.ServerShutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("server shutdown error", "err", err)
	}
	s.wg.Wait()
	logger.Info("server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start).String())
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("write response failed", "err", err)
	}
}

// errorResponse writes err as {error, detail}. Unclassified errors never
// leak their message.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := bridgeerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("api error", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		logger.Debug("api rejected request", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.jsonResponse(w, status, errorBody{
		Error:  string(bridgeerr.KindOf(err)),
		Detail: bridgeerr.DetailOf(err),
	})
}

// decodeBody reads a JSON body no larger than the configured limit.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return bridgeerr.Newf(bridgeerr.KindInvalidPayload, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return bridgeerr.Wrap(bridgeerr.KindInvalidPayload, "request body is not valid JSON", err)
	}
	return nil
}
