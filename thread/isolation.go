// Package thread owns the binding between remote conversation threads and
// the employees that opened them. It is the single gate that keeps one
// employee's tool execution out of another employee's conversation.
package thread

import (
	"strings"
	"sync"

	"github.com/linanwx/leadbridge/internal/bridgeerr"
	"github.com/linanwx/leadbridge/logger"
)

// Isolation maps thread ids to their owning employee. A binding, once made,
// is never changed.
type Isolation struct {
	mu     sync.RWMutex
	owners map[string]string
	strict bool
}

// Option configures an Isolation.
type Option func(*Isolation)

// WithStrict rejects threads that were never bound instead of binding them to
// the first employee that presents them.
func WithStrict(strict bool) Option {
	return func(i *Isolation) { i.strict = strict }
}

// NewIsolation creates an empty isolation manager.
func NewIsolation(opts ...Option) *Isolation {
	i := &Isolation{owners: make(map[string]string)}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Strict reports whether unknown threads are rejected.
func (i *Isolation) Strict() bool { return i.strict }

// Bind registers employeeID as the owner of threadID. Binding the same pair
// again is a no-op; binding a thread owned by someone else fails.
func (i *Isolation) Bind(threadID, employeeID string) error {
	if err := checkIDs(threadID, employeeID); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if owner, ok := i.owners[threadID]; ok {
		if owner == employeeID {
			return nil
		}
		return violation("bind", threadID, employeeID, owner)
	}
	i.owners[threadID] = employeeID
	logger.Debug("thread bound", "thread", threadID, "employee", employeeID)
	return nil
}

// Validate fails unless employeeID owns threadID. An unknown thread is bound
// to employeeID on first use, or rejected in strict mode.
func (i *Isolation) Validate(threadID, employeeID string) error {
	if err := checkIDs(threadID, employeeID); err != nil {
		return err
	}

	i.mu.RLock()
	owner, ok := i.owners[threadID]
	i.mu.RUnlock()
	if ok {
		if owner == employeeID {
			return nil
		}
		return violation("validate", threadID, employeeID, owner)
	}

	if i.strict {
		logger.Security("unknown thread rejected", "thread", threadID, "employee", employeeID)
		return bridgeerr.Newf(bridgeerr.KindThreadAccessDenied, "thread %s is not owned by employee %s", threadID, employeeID)
	}
	// Bind re-checks under the write lock; a concurrent first use by another
	// employee loses here.
	return i.Bind(threadID, employeeID)
}

// Check is Validate without first-use binding: a thread bound to another
// employee fails, an unknown thread passes unless strict mode is on.
func (i *Isolation) Check(threadID, employeeID string) error {
	if err := checkIDs(threadID, employeeID); err != nil {
		return err
	}
	owner, ok := i.Owner(threadID)
	switch {
	case ok && owner != employeeID:
		return violation("check", threadID, employeeID, owner)
	case !ok && i.strict:
		logger.Security("unknown thread rejected", "thread", threadID, "employee", employeeID)
		return bridgeerr.Newf(bridgeerr.KindThreadAccessDenied, "thread %s is not owned by employee %s", threadID, employeeID)
	}
	return nil
}

// Owner returns the employee bound to threadID.
func (i *Isolation) Owner(threadID string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	owner, ok := i.owners[threadID]
	return owner, ok
}

// Len returns the number of bound threads.
func (i *Isolation) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.owners)
}

// Restore loads persisted bindings (thread id -> employee id). Entries that
// conflict with an existing binding are skipped and logged. Returns the
// number of bindings added.
func (i *Isolation) Restore(bindings map[string]string) int {
	added := 0
	for threadID, employeeID := range bindings {
		if checkIDs(threadID, employeeID) != nil {
			continue
		}
		i.mu.Lock()
		owner, ok := i.owners[threadID]
		if !ok {
			i.owners[threadID] = employeeID
			added++
		}
		i.mu.Unlock()
		if ok && owner != employeeID {
			logger.Security("conflicting persisted thread binding ignored",
				"thread", threadID, "employee", employeeID, "owner", owner)
		}
	}
	return added
}

func checkIDs(threadID, employeeID string) error {
	var missing []string
	if strings.TrimSpace(threadID) == "" {
		missing = append(missing, "thread_id")
	}
	if strings.TrimSpace(employeeID) == "" {
		missing = append(missing, "employee_id")
	}
	if len(missing) > 0 {
		return bridgeerr.New(bridgeerr.KindMissingFields, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}

func violation(op, threadID, employeeID, owner string) error {
	logger.Security("thread isolation violation",
		"op", op, "thread", threadID, "employee", employeeID, "owner", owner)
	return bridgeerr.Newf(bridgeerr.KindThreadAccessDenied, "thread %s is not owned by employee %s", threadID, employeeID)
}
