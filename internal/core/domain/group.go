package domain

// FailureGroup is a named bucket of failures sharing a classification.
// The id is a pure function of the classifier name and the classification
// value, so re-running classification is idempotent.
type FailureGroup struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"` // classifier name
}
