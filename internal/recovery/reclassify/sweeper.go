package reclassify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/recovery/classify"
	"github.com/vietddude/recoverer/internal/recovery/groups"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

const (
	// DoneMarker gates the sweep so it runs at most once unless forced.
	DoneMarker = "failure_reclassification_complete"

	// DefaultBatchSize is the number of records classified per batch.
	DefaultBatchSize = 1000

	// DefaultParallelism bounds concurrent classification within a batch.
	DefaultParallelism = 8
)

// Sweeper re-applies the classifier pipeline to historical unresolved
// failures. Best effort: per-record write conflicts are dropped, since a
// record that lost the race is classified again on its next failure or on
// the next sweep.
type Sweeper struct {
	records  storage.FailureRecordRepository
	markers  storage.MarkerRepository
	pipeline *classify.Pipeline
	registry *groups.Registry

	batchSize   int
	parallelism int
}

// NewSweeper creates a reclassification sweeper.
func NewSweeper(
	records storage.FailureRecordRepository,
	markers storage.MarkerRepository,
	pipeline *classify.Pipeline,
	registry *groups.Registry,
) *Sweeper {
	return &Sweeper{
		records:     records,
		markers:     markers,
		pipeline:    pipeline,
		registry:    registry,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
	}
}

// SetTuning overrides batch size and parallelism.
func (s *Sweeper) SetTuning(batchSize, parallelism int) {
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if parallelism > 0 {
		s.parallelism = parallelism
	}
}

// Run executes the sweep unless it already completed, or always when forced.
// Streams the unresolved set in stable-ordered pages, classifying each batch
// with bounded parallelism.
func (s *Sweeper) Run(ctx context.Context, force bool) error {
	if !force {
		done, err := s.markers.IsSet(ctx, DoneMarker)
		if err != nil {
			return fmt.Errorf("failed to check sweep marker: %w", err)
		}
		if done {
			slog.Info("Reclassification already complete, skipping")
			return nil
		}
	}

	slog.Info("Reclassification sweep started", "batch_size", s.batchSize)

	afterID := ""
	total := 0
	for {
		page, err := s.records.UnresolvedPage(ctx, afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to page unresolved records: %w", err)
		}
		if len(page) == 0 {
			break
		}

		s.processBatch(ctx, page)
		total += len(page)
		afterID = page[len(page)-1].ID

		if len(page) < s.batchSize {
			break
		}
	}

	if err := s.markers.Set(ctx, DoneMarker); err != nil {
		return fmt.Errorf("failed to set sweep marker: %w", err)
	}

	slog.Info("Reclassification sweep finished", "records", total)
	return nil
}

// processBatch classifies one batch concurrently. One record's failure never
// aborts the batch or the sweep.
func (s *Sweeper) processBatch(ctx context.Context, batch []*domain.FailureRecord) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, record := range batch {
		g.Go(func() error {
			s.reclassify(ctx, record)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Sweeper) reclassify(ctx context.Context, record *domain.FailureRecord) {
	changed := s.pipeline.Classify(record)
	if len(changed) == 0 {
		return
	}

	err := s.records.PatchGroups(ctx, record.ID, record.Groups, record.Version)
	if errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrNotFound) {
		metrics.ReclassifyConflictsDropped.Inc()
		slog.Debug("Reclassification patch dropped", "id", record.ID)
		return
	}
	if err != nil {
		slog.Warn("Reclassification patch failed", "id", record.ID, "error", err)
		return
	}

	for _, grp := range changed {
		if err := s.registry.Announce(ctx, grp); err != nil {
			slog.Warn("Failed to announce group", "group", grp.ID, "error", err)
		}
	}
}
