// Package pending tracks tool calls that the assistant runtime is waiting
// on. Entries are keyed internally by a correlation key that never leaves
// the process; deliveries find them by the public (tool call, thread, run)
// triple.
package pending

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/toolargs"
)

// Status is the lifecycle state of a pending call.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

var (
	// ErrNotFound is returned when no live entry matches.
	ErrNotFound = errors.New("pending tool call not found")
	// ErrRegistryFull is returned when the configured capacity is reached.
	ErrRegistryFull = errors.New("pending tool call registry full")
	// ErrAlreadyResolved is returned by Register for a triple that was
	// resolved earlier.
	ErrAlreadyResolved = errors.New("pending tool call already resolved")
	// ErrWrongEmployee is returned by ResolveFor when the entry belongs to
	// another employee. The entry stays pending.
	ErrWrongEmployee = errors.New("pending tool call belongs to another employee")
)

// Call is one outstanding tool call.
type Call struct {
	CorrelationKey string
	ToolCallID     string
	FunctionName   string
	Arguments      toolargs.Arguments // nil when RawArguments did not parse
	RawArguments   string
	EmployeeID     string
	ThreadID       string
	RunID          string
	CreatedAt      time.Time
	Status         Status
	Age            time.Duration // computed at read time
}

// Spec describes one tool call of an action step.
type Spec struct {
	ToolCallID   string
	FunctionName string
	Arguments    toolargs.Arguments
	RawArguments string
}

type triple struct {
	toolCallID string
	threadID   string
	runID      string
}

// RunKey identifies one run of a thread.
type RunKey struct {
	ThreadID string
	RunID    string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	byKey      map[string]*Call
	byTriple   map[triple]string
	resolved   map[triple]time.Time // tombstones
	now        func() time.Time
	newKey     func() string
	maxEntries int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMaxEntries bounds the number of live entries (0 = unbounded).
func WithMaxEntries(n int) Option {
	return func(r *Registry) { r.maxEntries = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byKey:    make(map[string]*Call),
		byTriple: make(map[triple]string),
		resolved: make(map[triple]time.Time),
		now:      time.Now,
		newKey:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates one entry and returns its correlation key.
func (r *Registry) Register(employeeID, threadID, runID, toolCallID, functionName string, args toolargs.Arguments) (string, error) {
	keys, err := r.RegisterBatch(employeeID, threadID, runID, []Spec{{
		ToolCallID:   toolCallID,
		FunctionName: functionName,
		Arguments:    args,
	}})
	if err != nil {
		return "", err
	}
	if keys[0] == "" {
		return "", ErrAlreadyResolved
	}
	return keys[0], nil
}

// RegisterBatch registers every call of one action step atomically: either
// all are visible to Resolve or none are. A triple that is already live
// keeps its entry and key. A triple that was already resolved is not
// registered again and yields an empty key.
func (r *Registry) RegisterBatch(employeeID, threadID, runID string, specs []Spec) ([]string, error) {
	if strings.TrimSpace(employeeID) == "" || strings.TrimSpace(threadID) == "" || strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("register: employee, thread and run ids are required")
	}
	for _, s := range specs {
		if strings.TrimSpace(s.ToolCallID) == "" {
			return nil, fmt.Errorf("register: tool call id is required")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := 0
	for _, s := range specs {
		t := triple{s.ToolCallID, threadID, runID}
		if _, ok := r.byTriple[t]; ok {
			continue
		}
		if _, ok := r.resolved[t]; ok {
			continue
		}
		fresh++
	}
	if r.maxEntries > 0 && len(r.byKey)+fresh > r.maxEntries {
		return nil, ErrRegistryFull
	}

	now := r.now()
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		t := triple{s.ToolCallID, threadID, runID}
		if key, ok := r.byTriple[t]; ok {
			keys = append(keys, key)
			continue
		}
		if _, ok := r.resolved[t]; ok {
			keys = append(keys, "")
			continue
		}
		key := r.newKey()
		r.byKey[key] = &Call{
			CorrelationKey: key,
			ToolCallID:     s.ToolCallID,
			FunctionName:   s.FunctionName,
			Arguments:      s.Arguments,
			RawArguments:   s.RawArguments,
			EmployeeID:     employeeID,
			ThreadID:       threadID,
			RunID:          runID,
			CreatedAt:      now,
			Status:         StatusPending,
		}
		r.byTriple[t] = key
		keys = append(keys, key)
		logger.Debug("pending tool call registered",
			"employee", employeeID, "thread", threadID, "run", runID,
			"toolCall", s.ToolCallID, "function", s.FunctionName)
	}
	return keys, nil
}

// Resolve removes and returns the entry matching all three ids. A second
// Resolve for the same triple returns ErrNotFound.
func (r *Registry) Resolve(toolCallID, threadID, runID string) (Call, error) {
	return r.ResolveFor("", toolCallID, threadID, runID)
}

// ResolveFor is Resolve limited to entries registered for employeeID; an
// empty employeeID matches any owner.
func (r *Registry) ResolveFor(employeeID, toolCallID, threadID, runID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := triple{toolCallID, threadID, runID}
	key, ok := r.byTriple[t]
	if !ok {
		return Call{}, ErrNotFound
	}
	c := r.byKey[key]
	if employeeID != "" && c.EmployeeID != employeeID {
		return Call{}, ErrWrongEmployee
	}
	delete(r.byTriple, t)
	delete(r.byKey, key)
	r.resolved[t] = r.now()

	out := *c
	out.Status = StatusResolved
	out.Age = r.now().Sub(c.CreatedAt)
	return out, nil
}

// Reinstate puts a resolved call back as pending, keeping its key and
// creation time. Used when the output could not be forwarded.
func (r *Registry) Reinstate(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := triple{c.ToolCallID, c.ThreadID, c.RunID}
	if _, ok := r.byTriple[t]; ok {
		return nil
	}
	delete(r.resolved, t)
	if c.CorrelationKey == "" {
		c.CorrelationKey = r.newKey()
	}
	c.Status = StatusPending
	c.Age = 0
	r.byKey[c.CorrelationKey] = &c
	r.byTriple[t] = c.CorrelationKey
	return nil
}

// ListForEmployee returns the employee's entries, oldest first.
func (r *Registry) ListForEmployee(employeeID string) []Call {
	return r.collect(func(c *Call) bool { return c.EmployeeID == employeeID })
}

// ListForRun returns the run's entries, oldest first.
func (r *Registry) ListForRun(threadID, runID string) []Call {
	return r.collect(func(c *Call) bool { return c.ThreadID == threadID && c.RunID == runID })
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// SweepExpired removes and returns every entry older than maxAge, oldest
// first. Entries exactly maxAge old are kept. Resolution tombstones older
// than maxAge are pruned, and a run that lost an entry also loses all of its
// tombstones so the next registration of its step brings back every call.
func (r *Registry) SweepExpired(maxAge time.Duration) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneResolved(maxAge)
	expired := r.expire(maxAge, func(*Call) bool { return true })
	for _, c := range expired {
		r.forgetResolved(c.ThreadID, c.RunID)
	}
	sortCalls(expired)
	return expired
}

// ExpiredRuns returns the runs holding at least one entry older than maxAge.
func (r *Registry) ExpiredRuns(maxAge time.Duration) []RunKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	seen := make(map[RunKey]bool)
	var out []RunKey
	for _, c := range r.byKey {
		k := RunKey{c.ThreadID, c.RunID}
		if now.Sub(c.CreatedAt) <= maxAge || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ThreadID != out[j].ThreadID {
			return out[i].ThreadID < out[j].ThreadID
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

// SweepRun is SweepExpired for a single run. Tombstones of the run are
// cleared only when an entry expired.
func (r *Registry) SweepRun(threadID, runID string, maxAge time.Duration) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := r.expire(maxAge, func(c *Call) bool { return c.ThreadID == threadID && c.RunID == runID })
	if len(expired) > 0 {
		r.forgetResolved(threadID, runID)
	}
	sortCalls(expired)
	return expired
}

// DropRun removes every entry and tombstone of the run and returns the
// entries that were still pending.
func (r *Registry) DropRun(threadID, runID string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.expire(math.MinInt64, func(c *Call) bool { return c.ThreadID == threadID && c.RunID == runID })
	r.forgetResolved(threadID, runID)
	sortCalls(dropped)
	return dropped
}

// PruneResolved drops tombstones older than maxAge and returns how many
// were dropped.
func (r *Registry) PruneResolved(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneResolved(maxAge)
}

// expire removes matching entries older than maxAge. r.mu must be held.
func (r *Registry) expire(maxAge time.Duration, match func(*Call) bool) []Call {
	now := r.now()
	var out []Call
	for key, c := range r.byKey {
		age := now.Sub(c.CreatedAt)
		if age <= maxAge || !match(c) {
			continue
		}
		cp := *c
		cp.Age = age
		out = append(out, cp)
		delete(r.byKey, key)
		delete(r.byTriple, triple{c.ToolCallID, c.ThreadID, c.RunID})
	}
	return out
}

func (r *Registry) pruneResolved(maxAge time.Duration) int {
	now := r.now()
	n := 0
	for t, at := range r.resolved {
		if now.Sub(at) > maxAge {
			delete(r.resolved, t)
			n++
		}
	}
	return n
}

func (r *Registry) forgetResolved(threadID, runID string) {
	for t := range r.resolved {
		if t.threadID == threadID && t.runID == runID {
			delete(r.resolved, t)
		}
	}
}

func (r *Registry) collect(match func(*Call) bool) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var out []Call
	for _, c := range r.byKey {
		if !match(c) {
			continue
		}
		cp := *c
		cp.Age = now.Sub(c.CreatedAt)
		out = append(out, cp)
	}
	sortCalls(out)
	return out
}

func sortCalls(calls []Call) {
	sort.Slice(calls, func(i, j int) bool {
		if !calls[i].CreatedAt.Equal(calls[j].CreatedAt) {
			return calls[i].CreatedAt.Before(calls[j].CreatedAt)
		}
		return calls[i].ToolCallID < calls[j].ToolCallID
	})
}
