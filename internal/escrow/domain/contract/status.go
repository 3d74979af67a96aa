package contract

import "strings"

// Status describes the contract lifecycle label used by engine decisions.
type Status string

const (
	StatusUnspecified Status = ""
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
)

// ParseStatus canonicalizes a status label, rejecting values outside the
// closed set.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusActive:
		return StatusActive, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transitions may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// IsStatusTransitionAllowed enforces valid contract lifecycle transitions.
// Pending is the creation state and is never a transition target.
func IsStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusRejected
	case StatusActive:
		return to == StatusCompleted
	default:
		return false
	}
}
