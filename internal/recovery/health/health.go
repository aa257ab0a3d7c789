// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// DependencyHealth reports one backing dependency (database, redis).
type DependencyHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// EngineHealth reports the orchestration engine's working state.
type EngineHealth struct {
	ActiveArchiveOperations int `json:"active_archive_operations"`
	ActiveBulkRetries       int `json:"active_bulk_retries"`
	ContinuationBacklog     int `json:"continuation_backlog"`
}

// Report contains the full health report.
type Report struct {
	SystemStatus SystemStatus       `json:"system_status"`
	Dependencies []DependencyHealth `json:"dependencies"`
	Engine       EngineHealth       `json:"engine"`
}
