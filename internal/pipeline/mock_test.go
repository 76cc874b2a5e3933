package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/store"
	"github.com/counselstack/veritas/pkg/jina"
)

// mockStore implements store.Store for pipeline tests.
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

// mockProvider implements Provider for fallback-order tests.
type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Stream(ctx context.Context, req GenerationRequest, onDelta func(string)) (string, error) {
	args := m.Called(ctx, req, onDelta)
	return args.String(0), args.Error(1)
}

// stubEmbedder is a deterministic in-process embedder. Texts embed to the
// vector registered for them, or to fallback when unregistered, so tests
// control every cosine similarity the pipeline computes.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float64
	fallback []float64
	err      error
	calls    int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:  make(map[string][]float64),
		fallback: []float64{1, 0, 0},
	}
}

func (s *stubEmbedder) register(text string, vec []float64) *stubEmbedder {
	s.vectors[text] = vec
	return s
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string, _ jina.Task) ([][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if vec, ok := s.vectors[t]; ok {
			out[i] = vec
			continue
		}
		out[i] = s.fallback
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

var (
	_ store.Store = (*mockStore)(nil)
	_ Provider    = (*mockProvider)(nil)
	_ jina.Client = (*stubEmbedder)(nil)
)
