package domain

import (
	"errors"
	"time"
)

var (
	// ErrRecordResolved is returned when a failure arrives for a resolved record.
	ErrRecordResolved = errors.New("record already resolved")

	// ErrRecordArchived is returned when a failure arrives for an archived record.
	ErrRecordArchived = errors.New("record already archived")
)

// FailureStatus is the lifecycle status of a failure record.
type FailureStatus string

const (
	StatusUnresolved  FailureStatus = "unresolved"
	StatusRetryIssued FailureStatus = "retry_issued"
	StatusResolved    FailureStatus = "resolved"
	StatusArchived    FailureStatus = "archived"
)

// FailureRecord is the durable history of one logically-unique failing message,
// keyed by its stable unique message id.
type FailureRecord struct {
	ID       string              `json:"id"`
	Status   FailureStatus       `json:"status"`
	Attempts []ProcessingAttempt `json:"attempts"`
	Groups   []FailureGroup      `json:"failure_groups"`

	// Version is the optimistic-concurrency token; bumped on every save.
	Version int64 `json:"-"`
}

// ProcessingAttempt is one failed processing attempt of the message.
type ProcessingAttempt struct {
	MessageType string            `json:"message_type"`
	Endpoint    string            `json:"endpoint"`
	Headers     map[string]string `json:"headers,omitempty"`
	AttemptedAt time.Time         `json:"attempted_at"`
	Failure     FailureDetails    `json:"failure"`
}

// FailureDetails describes why an attempt failed.
type FailureDetails struct {
	ExceptionType string    `json:"exception_type"`
	Message       string    `json:"message"`
	StackTrace    string    `json:"stack_trace,omitempty"`
	FailedAt      time.Time `json:"failed_at"`
}

// LatestAttempt returns the most recent processing attempt, or nil if none.
// The latest attempt determines current classification and display fields.
func (r *FailureRecord) LatestAttempt() *ProcessingAttempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// LastFailureAt returns the failure time of the latest attempt.
func (r *FailureRecord) LastFailureAt() time.Time {
	a := r.LatestAttempt()
	if a == nil {
		return time.Time{}
	}
	return a.Failure.FailedAt
}

// RecordFailure appends a processing attempt and moves the record back to
// unresolved. Resolved and archived records are terminal: an out-of-order
// failure notification must never reopen them.
func (r *FailureRecord) RecordFailure(attempt ProcessingAttempt) error {
	switch r.Status {
	case StatusResolved:
		return ErrRecordResolved
	case StatusArchived:
		return ErrRecordArchived
	}

	r.Attempts = append(r.Attempts, attempt)
	r.Status = StatusUnresolved
	return nil
}

// HasGroup reports whether the record already belongs to the given group.
func (r *FailureRecord) HasGroup(groupID string) bool {
	for _, g := range r.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// AddGroup appends a group membership if not already present. Membership is
// append-only: an existing entry is never removed, and a non-empty title is
// never downgraded to empty by a later classifier run.
func (r *FailureRecord) AddGroup(group FailureGroup) bool {
	for i := range r.Groups {
		if r.Groups[i].ID == group.ID {
			if r.Groups[i].Title == "" && group.Title != "" {
				r.Groups[i].Title = group.Title
				return true
			}
			return false
		}
	}
	r.Groups = append(r.Groups, group)
	return true
}

// MarkRetryIssued flags the record as having a retry in flight.
func (r *FailureRecord) MarkRetryIssued() {
	if r.Status == StatusUnresolved {
		r.Status = StatusRetryIssued
	}
}

// MarkResolved marks the record as successfully reprocessed.
func (r *FailureRecord) MarkResolved() {
	r.Status = StatusResolved
}

// MarkArchived marks the record as no longer actionable.
func (r *FailureRecord) MarkArchived() {
	r.Status = StatusArchived
}

// Unarchive explicitly reverses an archive, returning the record to the
// working set.
func (r *FailureRecord) Unarchive() {
	if r.Status == StatusArchived {
		r.Status = StatusUnresolved
	}
}
