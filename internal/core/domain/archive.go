package domain

import (
	"fmt"
	"time"
)

// ArchiveType distinguishes what an archive run is scoped to.
type ArchiveType string

const (
	// ArchiveFailureGroup archives every eligible message in one group.
	ArchiveFailureGroup ArchiveType = "failure_group"

	// ArchiveTimeRange archives every eligible message that failed inside a
	// time range, regardless of group.
	ArchiveTimeRange ArchiveType = "time_range"
)

// ArchiveOperationID derives the deterministic id for an archive run over the
// given scope. One run per (scope, type) may be in flight at a time.
func ArchiveOperationID(scopeKey string, archiveType ArchiveType) string {
	return fmt.Sprintf("%s/%s", archiveType, scopeKey)
}

// ArchiveBatchID derives the id of one batch within an operation.
func ArchiveBatchID(operationID string, index int) string {
	return fmt.Sprintf("%s/%d", operationID, index)
}

// ArchiveOperation is the durable progress record for one archive run.
// Created once per run, updated after every batch under optimistic
// concurrency, deleted on completion.
type ArchiveOperation struct {
	ID               string      `json:"id"`
	RequestID        string      `json:"request_id"`
	ArchiveType      ArchiveType `json:"archive_type"`
	GroupID          string      `json:"group_id"`
	GroupName        string      `json:"group_name"`
	TotalMessages    int         `json:"total_messages"`
	MessagesArchived int         `json:"messages_archived"`
	NumberOfBatches  int         `json:"number_of_batches"`
	CurrentBatch     int         `json:"current_batch"`
	CutoffTime       time.Time   `json:"cutoff_time"`
	StartedAt        time.Time   `json:"started_at"`

	Version int64 `json:"-"`
}

// Done reports whether every batch has been consumed.
func (o *ArchiveOperation) Done() bool {
	return o.CurrentBatch >= o.NumberOfBatches
}

// ArchiveBatch is an immutable page of document ids belonging to one archive
// operation. The id list may resolve to fewer live documents than originally
// counted; an empty batch must still be consumed and skipped.
type ArchiveBatch struct {
	ID          string   `json:"id"`
	OperationID string   `json:"operation_id"`
	Index       int      `json:"index"`
	DocumentIDs []string `json:"document_ids"`
}
