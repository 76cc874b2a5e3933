package model

import "time"

// ValidationRecord is the durable audit artifact for one pipeline run.
// Records are write-once; a re-run inserts a new record rather than
// updating an old one. BundleHash covers the whole bundle and doubles as
// the idempotency key for persistence.
type ValidationRecord struct {
	ID          string               `json:"id"`
	Query       string               `json:"query"`
	Answer      string               `json:"answer"`
	AnswerHash  string               `json:"answer_hash"`
	Confidence  ConfidenceScore      `json:"confidence"`
	Citations   []Citation           `json:"citations"`
	Validations []CitationValidation `json:"validations"`
	Flags       []FlaggedContent     `json:"flags"`
	ReviewState ReviewState          `json:"review_state"`
	BundleHash  string               `json:"bundle_hash"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Answer is the caller-facing result of one query. It is always returned,
// possibly degraded, possibly flagged; never a silent partial.
type Answer struct {
	RecordID       string               `json:"record_id"`
	Text           string               `json:"text"`
	Confidence     ConfidenceScore      `json:"confidence"`
	Citations      []Citation           `json:"citations"`
	Validations    []CitationValidation `json:"validations"`
	Flags          []FlaggedContent     `json:"flags"`
	Corrected      bool                 `json:"corrected,omitempty"`
	ReviewRequired bool                 `json:"review_required"`
	ReviewTaskID   string               `json:"review_task_id,omitempty"`
	Degraded       bool                 `json:"degraded,omitempty"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
}
