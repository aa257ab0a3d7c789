package classify

import (
	"github.com/vietddude/recoverer/internal/core/domain"
	"github.com/vietddude/recoverer/internal/recovery/metrics"
)

// Classification is the outcome of one classifier for one record.
type Classification struct {
	// Value feeds the deterministic group id.
	Value string
	// Title is the human-readable group name, meaningful on first creation.
	Title string
}

// Classifier maps a failed message's latest attempt to zero-or-one group.
// Classifiers are pure and must not interact with each other.
type Classifier interface {
	// Name identifies the classifier; it becomes the group type tag.
	Name() string

	// Classify returns the classification for an attempt, or ok=false when
	// the attempt doesn't match this classifier's pattern.
	Classify(attempt *domain.ProcessingAttempt) (Classification, bool)
}

// Pipeline runs a fixed, stable order of classifiers over failure records.
type Pipeline struct {
	classifiers []Classifier
}

// NewPipeline creates a pipeline with the given classifiers, run in order.
func NewPipeline(classifiers ...Classifier) *Pipeline {
	return &Pipeline{classifiers: classifiers}
}

// DefaultPipeline returns the built-in classifier set.
func DefaultPipeline() *Pipeline {
	return NewPipeline(
		ExceptionTypeClassifier{},
		MessageTypeClassifier{},
		EndpointClassifier{},
	)
}

// Classify applies every classifier to the record's latest attempt and
// appends any missing group memberships. Existing memberships are never
// removed. Returns the groups that were added or retitled by this run.
func (p *Pipeline) Classify(record *domain.FailureRecord) []domain.FailureGroup {
	attempt := record.LatestAttempt()
	if attempt == nil {
		return nil
	}

	var changed []domain.FailureGroup
	for _, c := range p.classifiers {
		result, ok := c.Classify(attempt)
		if !ok {
			// No group assignment is an allowed, silent outcome.
			continue
		}

		group := domain.FailureGroup{
			ID:    GroupID(c.Name(), result.Value),
			Title: result.Title,
			Type:  c.Name(),
		}
		if record.AddGroup(group) {
			changed = append(changed, group)
			metrics.MessagesClassified.WithLabelValues(c.Name()).Inc()
		}
	}
	return changed
}
