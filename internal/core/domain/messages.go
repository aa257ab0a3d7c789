package domain

import "time"

// Message kinds carried on the bus. Inbound commands trigger the engine,
// outbound events report its progress.
const (
	KindImportFailedMessage = "recoverer.import-failed-message"
	KindArchiveGroup        = "recoverer.archive-group"
	KindRetryGroup          = "recoverer.retry-group"
	KindRetryMessagesByID   = "recoverer.retry-messages-by-id"
	KindSubmitRetry         = "recoverer.submit-retry"
	KindBulkRetryContinue   = "recoverer.bulk-retry-continue"

	KindNewFailureGroupDetected  = "recoverer.new-failure-group-detected"
	KindGroupArchived            = "recoverer.group-archived"
	KindGroupRetried             = "recoverer.group-retried"
	KindBulkRetryCompleted       = "recoverer.bulk-retry-completed"
	KindMessageSubmittedForRetry = "recoverer.message-submitted-for-retry"
)

// ImportFailedMessage triggers classification of an ingested failure record.
type ImportFailedMessage struct {
	UniqueMessageID string `json:"unique_message_id"`
}

// ArchiveGroup starts (or resumes) an archive run over a group. CutoffTime
// bounds eligibility so the archive scope stays stable while new failures
// keep arriving.
type ArchiveGroup struct {
	GroupID    string    `json:"group_id"`
	CutoffTime time.Time `json:"cutoff_time"`
}

// RetryGroup starts a bulk retry run for a group.
type RetryGroup struct {
	GroupID   string    `json:"group_id"`
	StartedAt time.Time `json:"started_at"`
}

// RetryMessagesByID retries specific messages, bypassing grouping.
type RetryMessagesByID struct {
	MessageIDs []string `json:"message_ids"`
}

// SubmitRetry asks the transport to reprocess one failed message. Issuance is
// idempotent at the message level; duplicate commands are tolerated
// downstream.
type SubmitRetry struct {
	FailedMessageID string `json:"failed_message_id"`
}

// BulkRetryContinuation re-enters the bulk retry workflow after the
// configured delay, carrying the total observed by the previous cycle.
type BulkRetryContinuation struct {
	GroupID       string `json:"group_id"`
	PreviousTotal int    `json:"previous_total"`
}

// NewFailureGroupDetected announces the first sighting of a group.
type NewFailureGroupDetected struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// GroupArchived reports a completed archive run with final counts.
type GroupArchived struct {
	GroupID      string `json:"group_id"`
	GroupName    string `json:"group_name"`
	MessageCount int    `json:"message_count"`
}

// GroupRetried reports that retry issuance completed for a group's current
// page. Not necessarily resolution.
type GroupRetried struct {
	GroupID string `json:"group_id"`
}

// BulkRetryCompleted reports termination of a bulk retry run.
// RanToCompletion is false when the run was stopped by stall detection.
type BulkRetryCompleted struct {
	GroupID         string `json:"group_id"`
	RanToCompletion bool   `json:"ran_to_completion"`
}

// MessageSubmittedForRetry reports one issued retry.
type MessageSubmittedForRetry struct {
	FailedMessageID string `json:"failed_message_id"`
}
