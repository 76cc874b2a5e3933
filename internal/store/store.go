package store

import (
	"context"
	"time"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
)

// RecordFilter specifies criteria for listing validation records.
type RecordFilter struct {
	ReviewState model.ReviewState `json:"review_state,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// TaskFilter specifies criteria for listing review tasks.
type TaskFilter struct {
	Status    model.TaskStatus   `json:"status,omitempty"`
	Priority  model.TaskPriority `json:"priority,omitempty"`
	DueBefore time.Time          `json:"due_before,omitempty"`
	Limit     int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the validation pipeline.
type Store interface {
	// Source corpus
	UpsertSource(ctx context.Context, src model.Source, embedding []float64) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	SearchSources(ctx context.Context, embedding []float64, topK int) ([]model.RetrievedPassage, error)
	CountSources(ctx context.Context) (int, error)

	// Validation records (write-once; idempotent on bundle hash)
	InsertRecord(ctx context.Context, rec *model.ValidationRecord) (bool, error)
	GetRecord(ctx context.Context, id string) (*model.ValidationRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ValidationRecord, error)
	CountRecordsByState(ctx context.Context) (map[model.ReviewState]int, error)
	SetRecordReviewState(ctx context.Context, recordID string, state model.ReviewState) error

	// Review tasks
	CreateTask(ctx context.Context, task *model.ReviewTask) error
	GetTask(ctx context.Context, id string) (*model.ReviewTask, error)
	UpdateTask(ctx context.Context, task *model.ReviewTask) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.ReviewTask, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
