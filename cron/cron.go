// Package cron runs in-process maintenance jobs on cron schedules.
package cron

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/leadbridge/logger"
	robfigcron "github.com/robfig/cron/v3"
)

// Job describes one scheduled function.
type Job struct {
	ID      string    `json:"id"`
	Expr    string    `json:"expr"`
	NextRun time.Time `json:"next_run,omitempty"`
	LastRun time.Time `json:"last_run,omitempty"`
	Runs    int       `json:"runs"`
}

type entry struct {
	id      robfigcron.EntryID
	expr    string
	lastRun time.Time
	runs    int
}

// Scheduler manages maintenance jobs.
type Scheduler struct {
	cron    *robfigcron.Cron
	mu      sync.Mutex
	entries map[string]*entry
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    robfigcron.New(),
		entries: make(map[string]*entry),
	}
}

// ParseExpr reports whether expr is a valid schedule: five standard fields or
// a descriptor such as "@every 1m" or "@hourly".
func ParseExpr(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("expr is required")
	}
	if _, err := robfigcron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Add schedules fn under id. Runs of the same job never overlap; a run that
// is due while the previous one is still going is skipped.
func (s *Scheduler) Add(id, expr string, fn func()) error {
	id = strings.TrimSpace(id)
	expr = strings.TrimSpace(expr)
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if err := ParseExpr(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("job already exists: %s", id)
	}

	e := &entry{expr: expr}
	var running sync.Mutex
	entryID, err := s.cron.AddFunc(expr, func() {
		if !running.TryLock() {
			logger.Warn("cron job still running, skipping", "id", id)
			return
		}
		defer running.Unlock()
		s.run(id, e, fn)
	})
	if err != nil {
		return err
	}
	e.id = entryID
	s.entries[id] = e
	return nil
}

func (s *Scheduler) run(id string, e *entry, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cron job panicked", "id", id, "panic", r)
		}
	}()
	fn()

	s.mu.Lock()
	e.lastRun = time.Now()
	e.runs++
	s.mu.Unlock()
}

// Remove unschedules the job with id.
func (s *Scheduler) Remove(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.cron.Remove(e.id)
	delete(s.entries, id)
	return nil
}

// Trigger runs the job with id immediately on the calling goroutine.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	e, ok := s.entries[strings.TrimSpace(id)]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.cron.Entry(e.id).WrappedJob.Run()
	return nil
}

// List returns all jobs sorted by id.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Job{
			ID:      id,
			Expr:    e.expr,
			NextRun: s.cron.Entry(e.id).Next,
			LastRun: e.lastRun,
			Runs:    e.runs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Start starts the internal scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
