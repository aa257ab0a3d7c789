package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/groups"
)

// Importer classifies a freshly ingested failure record and announces any
// new groups.
type Importer struct {
	records  storage.FailureRecordRepository
	pipeline *Pipeline
	registry *groups.Registry
}

// NewImporter creates an import handler.
func NewImporter(
	records storage.FailureRecordRepository,
	pipeline *Pipeline,
	registry *groups.Registry,
) *Importer {
	return &Importer{records: records, pipeline: pipeline, registry: registry}
}

// HandleImport processes an ImportFailedMessage command: load the record,
// classify it, patch its group membership, and announce new groups. A
// concurrent write to the same record wins silently; classification happens
// again on the record's next failure.
func (i *Importer) HandleImport(ctx context.Context, cmd domain.ImportFailedMessage) error {
	record, err := i.records.Load(ctx, cmd.UniqueMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("Failure record not found, skipping classification", "id", cmd.UniqueMessageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	changed := i.pipeline.Classify(record)
	if len(changed) == 0 {
		return nil
	}

	err = i.records.PatchGroups(ctx, record.ID, record.Groups, record.Version)
	if errors.Is(err, storage.ErrVersionConflict) {
		slog.Debug("Classification lost write race", "id", record.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to patch groups: %w", err)
	}

	for _, g := range changed {
		if err := i.registry.Announce(ctx, g); err != nil {
			return fmt.Errorf("failed to announce group %s: %w", g.ID, err)
		}
	}
	return nil
}
