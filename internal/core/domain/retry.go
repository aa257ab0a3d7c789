package domain

import "time"

// BulkRetryState is the durable state of a bulk retry run, correlated by
// group id. Its existence means a run is in flight; absence means none.
type BulkRetryState struct {
	GroupID   string    `json:"group_id"`
	StartedAt time.Time `json:"started_at"`

	// UpdatesWithoutChange counts consecutive cycles in which the remaining
	// retryable count did not move. Reaching the stall threshold terminates
	// the run.
	UpdatesWithoutChange int `json:"updates_without_change"`

	Version int64 `json:"-"`
}
