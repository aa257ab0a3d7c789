package health

import (
	"context"

	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// Pinger checks one backing dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates dependency pings and engine counters into a report.
type Monitor struct {
	pingers       map[string]Pinger
	ops           storage.ArchiveOperationRepository
	retries       storage.BulkRetryRepository
	continuations storage.ContinuationRepository
}

// NewMonitor creates a health monitor. Pingers may be empty when running in
// memory mode.
func NewMonitor(
	pingers map[string]Pinger,
	ops storage.ArchiveOperationRepository,
	retries storage.BulkRetryRepository,
	continuations storage.ContinuationRepository,
) *Monitor {
	return &Monitor{
		pingers:       pingers,
		ops:           ops,
		retries:       retries,
		continuations: continuations,
	}
}

// CheckHealth builds a point-in-time report. Any unreachable dependency
// makes the system critical; counter failures only degrade it.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{SystemStatus: StatusHealthy}

	for name, p := range m.pingers {
		dep := DependencyHealth{Name: name, Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			dep.Status = StatusCritical
			dep.Error = err.Error()
			report.SystemStatus = StatusCritical
		}
		report.Dependencies = append(report.Dependencies, dep)
	}

	var err error
	if report.Engine.ActiveArchiveOperations, err = m.ops.Count(ctx); err != nil {
		report.SystemStatus = worstOf(report.SystemStatus, StatusDegraded)
	}
	if report.Engine.ActiveBulkRetries, err = m.retries.Count(ctx); err != nil {
		report.SystemStatus = worstOf(report.SystemStatus, StatusDegraded)
	}
	if report.Engine.ContinuationBacklog, err = m.continuations.Count(ctx); err != nil {
		report.SystemStatus = worstOf(report.SystemStatus, StatusDegraded)
	} else {
		metrics.ContinuationBacklog.Set(float64(report.Engine.ContinuationBacklog))
	}

	return report
}

func worstOf(a, b SystemStatus) SystemStatus {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
