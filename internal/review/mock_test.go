package review

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/store"
)

// mockStore implements store.Store for review manager tests.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertSource(ctx context.Context, src model.Source, embedding []float64) error {
	args := m.Called(ctx, src, embedding)
	return args.Error(0)
}

func (m *mockStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Source), args.Error(1)
}

func (m *mockStore) SearchSources(ctx context.Context, embedding []float64, topK int) ([]model.RetrievedPassage, error) {
	args := m.Called(ctx, embedding, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RetrievedPassage), args.Error(1)
}

func (m *mockStore) CountSources(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) InsertRecord(ctx context.Context, rec *model.ValidationRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetRecord(ctx context.Context, id string) (*model.ValidationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ValidationRecord), args.Error(1)
}

func (m *mockStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]model.ValidationRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ValidationRecord), args.Error(1)
}

func (m *mockStore) CountRecordsByState(ctx context.Context) (map[model.ReviewState]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.ReviewState]int), args.Error(1)
}

func (m *mockStore) SetRecordReviewState(ctx context.Context, recordID string, state model.ReviewState) error {
	args := m.Called(ctx, recordID, state)
	return args.Error(0)
}

func (m *mockStore) CreateTask(ctx context.Context, task *model.ReviewTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *mockStore) GetTask(ctx context.Context, id string) (*model.ReviewTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReviewTask), args.Error(1)
}

func (m *mockStore) UpdateTask(ctx context.Context, task *model.ReviewTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *mockStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]model.ReviewTask, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ReviewTask), args.Error(1)
}

func (m *mockStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resilience.DLQEntry), args.Error(1)
}

func (m *mockStore) RemoveDLQ(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) CountDLQ(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
