// Package employee resolves AI employee personas loaded from configuration.
package employee

import (
	"sort"
	"strings"
	"sync"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/internal/bridgeerr"
)

// Employee is a configured persona. Immutable after load.
type Employee struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	AssistantID string `json:"-"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

// Configured reports whether the employee has a usable assistant id.
func (e Employee) Configured() bool {
	return !IsPlaceholder(e.AssistantID)
}

var placeholderIDs = map[string]bool{
	"asst_xxx":          true,
	"asst_placeholder":  true,
	"your_assistant_id": true,
	"changeme":          true,
}

// IsPlaceholder reports whether an assistant id is blank or a template value.
func IsPlaceholder(assistantID string) bool {
	id := strings.ToLower(strings.TrimSpace(assistantID))
	if id == "" || placeholderIDs[id] {
		return true
	}
	return strings.Contains(id, "placeholder") || strings.Contains(id, "xxx")
}

// Directory looks employees up by id.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]Employee
}

// NewDirectory builds a directory from config entries.
func NewDirectory(entries []config.EmployeeConfig) *Directory {
	d := &Directory{employees: make(map[string]Employee, len(entries))}
	for _, e := range entries {
		d.employees[e.ID] = Employee{
			ID:          e.ID,
			Name:        e.Name,
			Role:        e.Role,
			AssistantID: strings.TrimSpace(e.AssistantID),
			WebhookURL:  e.WebhookURL,
		}
	}
	return d
}

// Get returns the employee with id, if present.
func (d *Directory) Get(id string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[id]
	return e, ok
}

// Exists reports whether id names a known employee, configured or not.
func (d *Directory) Exists(id string) bool {
	_, ok := d.Get(id)
	return ok
}

// Require returns the employee only when it exists and is fully configured.
func (d *Directory) Require(id string) (Employee, error) {
	e, ok := d.Get(id)
	if !ok {
		return Employee{}, bridgeerr.Newf(bridgeerr.KindEmployeeNotConfigured, "employee %q is not configured", id)
	}
	if !e.Configured() {
		return Employee{}, &bridgeerr.Error{
			Kind:        bridgeerr.KindEmployeeNotConfigured,
			Detail:      "employee " + id + " has no assistant configured",
			Placeholder: true,
		}
	}
	return e, nil
}

// List returns all employees sorted by id.
func (d *Directory) List() []Employee {
	d.mu.RLock()
	out := make([]Employee, 0, len(d.employees))
	for _, e := range d.employees {
		out = append(out, e)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
