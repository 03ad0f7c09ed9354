package domain

import "strings"

// Status is the normalized deployment or job status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusActive     Status = "active"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
	StatusCanceled   Status = "canceled"
	StatusInactive   Status = "inactive"
	StatusUnknown    Status = "unknown"
)

// Severity is how a status is rendered.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var statusAliases = map[string]Status{
	"pending":     StatusPending,
	"queued":      StatusPending,
	"created":     StatusPending,
	"scheduled":   StatusPending,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"running":     StatusInProgress,
	"deploying":   StatusInProgress,
	"executing":   StatusInProgress,
	"stopping":    StatusInProgress,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"succeeded":   StatusCompleted,
	"success":     StatusCompleted,
	"active":      StatusActive,
	"failed":      StatusFailed,
	"failure":     StatusFailed,
	"error":       StatusFailed,
	"timed_out":   StatusFailed,
	"rolled_back": StatusRolledBack,
	"rolledback":  StatusRolledBack,
	"canceled":    StatusCanceled,
	"cancelled":   StatusCanceled,
	"stopped":     StatusCanceled,
	"inactive":    StatusInactive,
}

// NormalizeStatus maps a raw backend status case-insensitively. Hyphens and
// spaces count as underscores. Anything unrecognized is StatusUnknown.
func NormalizeStatus(raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return StatusUnknown
}

// Terminal reports statuses after which no further change is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack, StatusCanceled:
		return true
	default:
		return false
	}
}

// Outstanding reports statuses that keep a watcher polling.
func (s Status) Outstanding() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s Status) Severity() Severity {
	switch s {
	case StatusCompleted, StatusActive:
		return SeveritySuccess
	case StatusFailed:
		return SeverityError
	case StatusRolledBack, StatusCanceled, StatusInactive:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// DeviceSucceeded reports whether a raw per-device outcome counts as success.
func DeviceSucceeded(raw string) bool {
	return NormalizeStatus(raw) == StatusCompleted
}
