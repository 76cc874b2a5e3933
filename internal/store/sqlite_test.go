package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSource(id string) model.Source {
	src := model.Source{
		ID:           id,
		Title:        "Miranda v. Arizona",
		Content:      "The person in custody must, prior to interrogation, be clearly informed of the right to remain silent.",
		Citation:     "384 U.S. 436",
		Court:        model.CourtSupreme,
		DocumentType: model.DocCaseLaw,
		Jurisdiction: "federal",
		PublishedAt:  time.Date(1966, 6, 13, 0, 0, 0, 0, time.UTC),
		URL:          "https://example.com/miranda",
	}
	src.ContentHash = model.SourceHash(src)
	return src
}

// --- Sources ---

func TestSQLite_UpsertSource_And_GetSource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	src := testSource("src-1")
	require.NoError(t, st.UpsertSource(ctx, src, []float64{0.1, 0.2, 0.3}))

	fetched, err := st.GetSource(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, src.Title, fetched.Title)
	assert.Equal(t, src.Citation, fetched.Citation)
	assert.Equal(t, model.CourtSupreme, fetched.Court)
	assert.Equal(t, model.DocCaseLaw, fetched.DocumentType)
	assert.Equal(t, src.ContentHash, fetched.ContentHash)
	assert.WithinDuration(t, src.PublishedAt, fetched.PublishedAt, time.Second)
}

func TestSQLite_GetSource_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	src, err := st.GetSource(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestSQLite_UpsertSource_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	src := testSource("src-1")
	require.NoError(t, st.UpsertSource(ctx, src, nil))

	src.Title = "Miranda v. Arizona (annotated)"
	require.NoError(t, st.UpsertSource(ctx, src, nil))

	fetched, err := st.GetSource(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "Miranda v. Arizona (annotated)", fetched.Title)

	count, err := st.CountSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_SearchSources_RanksByCosine(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	near := testSource("src-near")
	far := testSource("src-far")
	orthogonal := testSource("src-orthogonal")
	noEmbedding := testSource("src-none")

	require.NoError(t, st.UpsertSource(ctx, near, []float64{1, 0.05, 0}))
	require.NoError(t, st.UpsertSource(ctx, far, []float64{0.4, 0.9, 0}))
	require.NoError(t, st.UpsertSource(ctx, orthogonal, []float64{0, 0, 1}))
	require.NoError(t, st.UpsertSource(ctx, noEmbedding, nil))

	passages, err := st.SearchSources(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "src-near", passages[0].Source.ID)
	assert.Equal(t, "src-far", passages[1].Source.ID)
	assert.Greater(t, passages[0].Relevance, passages[1].Relevance)
}

func TestSQLite_SearchSources_ExcludesUnembedded(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertSource(ctx, testSource("src-1"), []float64{1, 0}))
	require.NoError(t, st.UpsertSource(ctx, testSource("src-2"), nil))

	passages, err := st.SearchSources(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "src-1", passages[0].Source.ID)
}

func TestSQLite_SearchSources_EmptyQueryEmbedding(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.SearchSources(context.Background(), nil, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty query embedding")
}

// --- Validation records ---

func testRecord(id, bundleHash string) *model.ValidationRecord {
	return &model.ValidationRecord{
		ID:         id,
		Query:      "What warnings are required before custodial interrogation?",
		Answer:     "Suspects must be informed of the right to remain silent [Source 1].",
		AnswerHash: model.TextHash("Suspects must be informed of the right to remain silent [Source 1]."),
		Confidence: model.ConfidenceScore{
			SourceQuality:     90,
			SourceQuantity:    20,
			SemanticAlignment: 85,
			Authority:         100,
			Recency:           0,
			Consensus:         20,
			Overall:           62,
		},
		Citations: []model.Citation{
			{ID: "c1", Raw: "[Source 1]", Kind: model.CitationMarker, Span: model.Span{Start: 56, End: 66}, SourceIndex: 1},
		},
		Validations: []model.CitationValidation{
			{CitationID: "c1", SourceID: "src-1", HashIntact: true, TextualMatch: true, Similarity: 0.91, Authority: 100, Status: model.StatusVerified},
		},
		ReviewState: model.ReviewNotReviewed,
		BundleHash:  bundleHash,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLite_InsertRecord_And_GetRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("rec-1", "bundle-1")
	inserted, err := st.InsertRecord(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	fetched, err := st.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, rec.Query, fetched.Query)
	assert.Equal(t, rec.AnswerHash, fetched.AnswerHash)
	assert.Equal(t, 62.0, fetched.Confidence.Overall)
	require.Len(t, fetched.Citations, 1)
	assert.Equal(t, model.CitationMarker, fetched.Citations[0].Kind)
	require.Len(t, fetched.Validations, 1)
	assert.Equal(t, model.StatusVerified, fetched.Validations[0].Status)
	assert.Equal(t, "bundle-1", fetched.BundleHash)
}

func TestSQLite_InsertRecord_DuplicateBundleHash(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	inserted, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same bundle hash under a new ID is a no-op.
	inserted, err = st.InsertRecord(ctx, testRecord("rec-2", "bundle-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	missing, err := st.GetRecord(ctx, "rec-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_GetRecord_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec, err := st.GetRecord(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_ListRecords_FilterByState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)
	_, err = st.InsertRecord(ctx, testRecord("rec-2", "bundle-2"))
	require.NoError(t, err)
	require.NoError(t, st.SetRecordReviewState(ctx, "rec-2", model.ReviewPending))

	pending, err := st.ListRecords(ctx, RecordFilter{ReviewState: model.ReviewPending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rec-2", pending[0].ID)

	all, err := st.ListRecords(ctx, RecordFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_CountRecordsByState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)
	_, err = st.InsertRecord(ctx, testRecord("rec-2", "bundle-2"))
	require.NoError(t, err)
	require.NoError(t, st.SetRecordReviewState(ctx, "rec-2", model.ReviewPending))

	counts, err := st.CountRecordsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ReviewNotReviewed])
	assert.Equal(t, 1, counts[model.ReviewPending])
}

func TestSQLite_SetRecordReviewState_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.SetRecordReviewState(context.Background(), "nonexistent", model.ReviewCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

// --- Review tasks ---

func TestSQLite_CreateTask_And_GetTask(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)

	deadline := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	task := &model.ReviewTask{
		RecordID: "rec-1",
		TaskType: "citation_verification",
		Priority: model.PriorityHigh,
		Content:  "Suspects must be informed...",
		Reason:   "overall confidence 42 below threshold 75",
		Deadline: deadline,
		Status:   model.TaskPending,
	}
	require.NoError(t, st.CreateTask(ctx, task))
	assert.NotEmpty(t, task.ID)

	fetched, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "rec-1", fetched.RecordID)
	assert.Equal(t, model.PriorityHigh, fetched.Priority)
	assert.Equal(t, model.TaskPending, fetched.Status)
	assert.WithinDuration(t, deadline, fetched.Deadline, time.Second)
}

func TestSQLite_GetTask_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	task, err := st.GetTask(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSQLite_UpdateTask(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)

	task := &model.ReviewTask{
		RecordID: "rec-1",
		TaskType: "citation_verification",
		Priority: model.PriorityNormal,
		Deadline: time.Now().UTC().Add(24 * time.Hour),
		Status:   model.TaskPending,
	}
	require.NoError(t, st.CreateTask(ctx, task))

	task.Status = model.TaskCompleted
	task.Decision = model.DecisionApprove
	task.ReviewerNotes = "citations check out"
	require.NoError(t, st.UpdateTask(ctx, task))

	fetched, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, model.TaskCompleted, fetched.Status)
	assert.Equal(t, model.DecisionApprove, fetched.Decision)
	assert.Equal(t, "citations check out", fetched.ReviewerNotes)
}

func TestSQLite_UpdateTask_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateTask(context.Background(), &model.ReviewTask{ID: "nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task not found")
}

func TestSQLite_ListTasks_FilterAndOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertRecord(ctx, testRecord("rec-1", "bundle-1"))
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	later := &model.ReviewTask{RecordID: "rec-1", TaskType: "t", Priority: model.PriorityNormal, Deadline: base.Add(48 * time.Hour), Status: model.TaskPending}
	sooner := &model.ReviewTask{RecordID: "rec-1", TaskType: "t", Priority: model.PriorityUrgent, Deadline: base.Add(2 * time.Hour), Status: model.TaskPending}
	done := &model.ReviewTask{RecordID: "rec-1", TaskType: "t", Priority: model.PriorityNormal, Deadline: base.Add(4 * time.Hour), Status: model.TaskCompleted}
	for _, task := range []*model.ReviewTask{later, sooner, done} {
		require.NoError(t, st.CreateTask(ctx, task))
	}

	pending, err := st.ListTasks(ctx, TaskFilter{Status: model.TaskPending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, sooner.ID, pending[0].ID, "soonest deadline first")
	assert.Equal(t, later.ID, pending[1].ID)

	urgent, err := st.ListTasks(ctx, TaskFilter{Priority: model.PriorityUrgent, Limit: 10})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.Equal(t, sooner.ID, urgent[0].ID)

	overdue, err := st.ListTasks(ctx, TaskFilter{Status: model.TaskPending, DueBefore: base.Add(24 * time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, sooner.ID, overdue[0].ID)
}

// --- Dead letter queue ---

func TestSQLite_DLQ_EnqueueListRemove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := resilience.DLQEntry{
		Kind:         resilience.DLQKindValidationRecord,
		Payload:      json.RawMessage(`{"id":"rec-1"}`),
		Error:        "connection refused",
		ErrorClass:   "transient",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{Kind: resilience.DLQKindValidationRecord})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "connection refused", entries[0].Error)
	assert.JSONEq(t, `{"id":"rec-1"}`, string(entries[0].Payload))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, st.RemoveDLQ(ctx, entries[0].ID))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLite_DLQ_ReenqueueUpdatesRetryState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := resilience.DLQEntry{
		ID:           "dlq-1",
		Kind:         resilience.DLQKindReviewTask,
		Payload:      json.RawMessage(`{}`),
		Error:        "timeout",
		ErrorClass:   "transient",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entry.RetryCount = 1
	entry.Error = "timeout again"
	entry.NextRetryAt = now.Add(2 * time.Minute)
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "timeout again", entries[0].Error)
}

func TestSQLite_DLQ_FilterByErrorClass(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, class := range []string{"transient", "permanent"} {
		require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
			ID:           string(rune('a' + i)),
			Kind:         resilience.DLQKindValidationRecord,
			Payload:      json.RawMessage(`{}`),
			Error:        "boom",
			ErrorClass:   class,
			NextRetryAt:  now,
			CreatedAt:    now,
			LastFailedAt: now,
		}))
	}

	transient, err := st.ListDLQ(ctx, resilience.DLQFilter{ErrorClass: "transient"})
	require.NoError(t, err)
	require.Len(t, transient, 1)
	assert.Equal(t, "transient", transient[0].ErrorClass)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in the helper; a second run must not error.
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ImplementsStore(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
