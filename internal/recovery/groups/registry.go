package groups

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/bus"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// SharedSet is the cross-instance known-group set (Redis in production). The
// first Register for an id returns true exactly once across all instances.
type SharedSet interface {
	Register(ctx context.Context, groupID string) (bool, error)
}

// Registry deduplicates first sightings of failure groups and announces each
// one exactly once. The in-process set is authoritative for this process; the
// shared set extends the check across instances. Both are caches: a missed
// sighting only costs a duplicate event, which downstream consumers tolerate.
type Registry struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	shared    SharedSet
	publisher bus.Publisher
}

// NewRegistry creates a registry. shared may be nil when Redis is not
// configured.
func NewRegistry(publisher bus.Publisher, shared SharedSet) *Registry {
	return &Registry{
		seen:      make(map[string]struct{}),
		shared:    shared,
		publisher: publisher,
	}
}

// Announce registers a group sighting and publishes NewFailureGroupDetected
// on the first one. Checked register-or-insert: the id is marked before
// publishing, so a concurrent caller never double-announces from this
// process.
func (r *Registry) Announce(ctx context.Context, group domain.FailureGroup) error {
	r.mu.Lock()
	if _, ok := r.seen[group.ID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.seen[group.ID] = struct{}{}
	r.mu.Unlock()

	if r.shared != nil {
		first, err := r.shared.Register(ctx, group.ID)
		if err != nil {
			// Degrade to the local set; worst case is a duplicate event.
			slog.Warn("Known-group set unavailable", "group", group.ID, "error", err)
		} else if !first {
			return nil
		}
	}

	slog.Info("New failure group detected", "group", group.ID, "title", group.Title, "type", group.Type)
	metrics.GroupsDetected.WithLabelValues(group.Type).Inc()

	return r.publisher.Publish(ctx, domain.KindNewFailureGroupDetected, domain.NewFailureGroupDetected{
		GroupID:   group.ID,
		GroupName: group.Title,
	})
}
