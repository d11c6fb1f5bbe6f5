package types

import "fmt"

// DraftStatus represents the moderation state of a draft
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
)

// AllDraftStatuses returns all valid draft statuses
func AllDraftStatuses() []DraftStatus {
	return []DraftStatus{
		DraftStatusPending,
		DraftStatusApproved,
		DraftStatusRejected,
	}
}

// IsValid checks if the draft status is valid
func (s DraftStatus) IsValid() bool {
	switch s {
	case DraftStatusPending,
		DraftStatusApproved,
		DraftStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further moderation action is allowed
func (s DraftStatus) IsTerminal() bool {
	return s == DraftStatusApproved || s == DraftStatusRejected
}

// String returns the string representation of the draft status
func (s DraftStatus) String() string {
	return string(s)
}

// ParseDraftStatus parses a string into a DraftStatus
func ParseDraftStatus(s string) (DraftStatus, error) {
	status := DraftStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid draft status: %s", s)
	}
	return status, nil
}
