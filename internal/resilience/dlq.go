package resilience

import (
	"encoding/json"
	"time"
)

// DLQ entry kinds, one per audit artifact whose write can fail.
const (
	DLQKindValidationRecord = "validation_record"
	DLQKindReviewTask       = "review_task"
)

// DLQEntry is a persistence write that failed and awaits the background
// reconciler. The payload is the JSON encoding of the artifact exactly as
// it should have been written.
type DLQEntry struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	ErrorClass   string          `json:"error_class"` // "transient" or "permanent"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	NextRetryAt  time.Time       `json:"next_retry_at"`
	CreatedAt    time.Time       `json:"created_at"`
	LastFailedAt time.Time       `json:"last_failed_at"`
}

// DLQFilter narrows dead-letter queries.
type DLQFilter struct {
	Kind       string `json:"kind,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// CanRetry reports whether the entry has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
