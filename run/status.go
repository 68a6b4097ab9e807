package run

import "fmt"

// Status is the lifecycle state of a remote run.
type Status string

const (
	StatusCreated        Status = "created"
	StatusQueued         Status = "queued"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCancelling     Status = "cancelling"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
	StatusIncomplete     Status = "incomplete"
)

// ParseStatus maps a runtime status string onto Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusCreated, StatusQueued, StatusInProgress, StatusRequiresAction,
		StatusCancelling, StatusCompleted, StatusFailed, StatusCancelled,
		StatusExpired, StatusIncomplete:
		return st, nil
	default:
		return "", fmt.Errorf("unrecognized run status %q", s)
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete:
		return true
	case StatusCreated, StatusQueued, StatusInProgress, StatusRequiresAction, StatusCancelling:
		return false
	default:
		return false
	}
}

var transitions = map[Status][]Status{
	StatusCreated:        {StatusQueued},
	StatusQueued:         {StatusInProgress, StatusCancelling, StatusCancelled, StatusExpired, StatusFailed},
	StatusInProgress:     {StatusCompleted, StatusRequiresAction, StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete, StatusCancelling},
	StatusRequiresAction: {StatusInProgress, StatusCancelling, StatusCancelled, StatusExpired, StatusFailed},
	StatusCancelling:     {StatusCancelled, StatusCompleted, StatusFailed, StatusExpired},
}

// CanTransition reports whether a run may move from one status to another.
// Staying in the same non-terminal status is allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
