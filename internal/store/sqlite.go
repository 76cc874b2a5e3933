package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/vector"
)

// SQLiteStore implements Store using modernc.org/sqlite. Embeddings are kept
// as JSON arrays and similarity search runs in process, which is fine for
// local corpora of a few thousand sources.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	citation      TEXT NOT NULL DEFAULT '',
	court         TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	published_at  DATETIME,
	url           TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	embedding     TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sources_citation ON sources(citation);

CREATE TABLE IF NOT EXISTS validation_records (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	answer       TEXT NOT NULL,
	answer_hash  TEXT NOT NULL,
	confidence   TEXT NOT NULL,
	citations    TEXT,
	validations  TEXT,
	flags        TEXT,
	review_state TEXT NOT NULL DEFAULT 'not_reviewed',
	bundle_hash  TEXT NOT NULL UNIQUE,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_review_state ON validation_records(review_state);

CREATE TABLE IF NOT EXISTS review_tasks (
	id             TEXT PRIMARY KEY,
	record_id      TEXT NOT NULL REFERENCES validation_records(id),
	task_type      TEXT NOT NULL,
	priority       TEXT NOT NULL,
	content        TEXT NOT NULL,
	reason         TEXT NOT NULL,
	deadline       DATETIME NOT NULL,
	assigned_to    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	decision       TEXT NOT NULL DEFAULT '',
	reviewer_notes TEXT NOT NULL DEFAULT '',
	modified_text  TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON review_tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON review_tasks(deadline);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	payload        TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dlq_kind ON dead_letter_queue(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.Source, embedding []float64) error {
	var embeddingJSON any
	if len(embedding) > 0 {
		data, err := vector.Encode(embedding)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode embedding")
		}
		embeddingJSON = string(data)
	}

	var publishedAt any
	if !src.PublishedAt.IsZero() {
		publishedAt = src.PublishedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title, content = excluded.content, citation = excluded.citation,
		   court = excluded.court, document_type = excluded.document_type,
		   jurisdiction = excluded.jurisdiction, published_at = excluded.published_at,
		   url = excluded.url, content_hash = excluded.content_hash,
		   embedding = excluded.embedding, updated_at = datetime('now')`,
		src.ID, src.Title, src.Content, src.Citation, string(src.Court), string(src.DocumentType),
		src.Jurisdiction, publishedAt, src.URL, src.ContentHash, embeddingJSON,
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.ID)
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash
		 FROM sources WHERE id = ?`,
		id,
	)

	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", id)
	}
	return src, nil
}

// SearchSources scans every embedded source and ranks by cosine similarity.
func (s *SQLiteStore) SearchSources(ctx context.Context, embedding []float64, topK int) ([]model.RetrievedPassage, error) {
	if len(embedding) == 0 {
		return nil, eris.New("sqlite: empty query embedding")
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash, embedding
		 FROM sources WHERE embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search sources")
	}
	defer rows.Close()

	var passages []model.RetrievedPassage
	for rows.Next() {
		var src model.Source
		var court, docType string
		var publishedAt sql.NullTime
		var embeddingJSON string

		if err := rows.Scan(&src.ID, &src.Title, &src.Content, &src.Citation, &court, &docType,
			&src.Jurisdiction, &publishedAt, &src.URL, &src.ContentHash, &embeddingJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		src.Court = model.CourtLevel(court)
		src.DocumentType = model.DocumentType(docType)
		if publishedAt.Valid {
			src.PublishedAt = publishedAt.Time
		}

		emb, err := vector.Decode([]byte(embeddingJSON))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode embedding for %s", src.ID)
		}

		passages = append(passages, model.RetrievedPassage{
			Source:    src,
			Relevance: vector.Cosine(embedding, emb),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search sources iterate")
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Relevance > passages[j].Relevance
	})
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

func (s *SQLiteStore) CountSources(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count sources")
}

func (s *SQLiteStore) InsertRecord(ctx context.Context, rec *model.ValidationRecord) (bool, error) {
	confidenceJSON, citationsJSON, validationsJSON, flagsJSON, err := marshalRecordParts(rec)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_records
		 (id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bundle_hash) DO NOTHING`,
		rec.ID, rec.Query, rec.Answer, rec.AnswerHash,
		string(confidenceJSON), string(citationsJSON), string(validationsJSON), string(flagsJSON),
		string(rec.ReviewState), rec.BundleHash, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ValidationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at
		 FROM validation_records WHERE id = ?`,
		id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ValidationRecord, error) {
	query := `SELECT id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at
	          FROM validation_records WHERE 1=1`
	var args []any

	if filter.ReviewState != "" {
		query += ` AND review_state = ?`
		args = append(args, string(filter.ReviewState))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) CountRecordsByState(ctx context.Context) (map[model.ReviewState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT review_state, COUNT(*) FROM validation_records GROUP BY review_state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count records by state")
	}
	defer rows.Close()

	counts := make(map[model.ReviewState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record count")
		}
		counts[model.ReviewState(state)] = count
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count records iterate")
}

func (s *SQLiteStore) SetRecordReviewState(ctx context.Context, recordID string, state model.ReviewState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE validation_records SET review_state = ? WHERE id = ?`,
		string(state), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set record review state %s", recordID)
	}
	return checkRowsAffected(res, "record", recordID)
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *model.ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_tasks
		 (id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.RecordID, task.TaskType, string(task.Priority), task.Content, task.Reason,
		task.Deadline, task.AssignedTo, string(task.Status), string(task.Decision),
		task.ReviewerNotes, task.ModifiedText, task.CreatedAt, task.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert task for record %s", task.RecordID)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.ReviewTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at
		 FROM review_tasks WHERE id = ?`,
		id,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get task %s", id)
	}
	return task, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, task *model.ReviewTask) error {
	task.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE review_tasks
		 SET priority = ?, status = ?, decision = ?, reviewer_notes = ?, modified_text = ?,
		     assigned_to = ?, deadline = ?, updated_at = ?
		 WHERE id = ?`,
		string(task.Priority), string(task.Status), string(task.Decision),
		task.ReviewerNotes, task.ModifiedText, task.AssignedTo, task.Deadline,
		task.UpdatedAt, task.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update task %s", task.ID)
	}
	return checkRowsAffected(res, "task", task.ID)
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.ReviewTask, error) {
	query := `SELECT id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at
	          FROM review_tasks WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if !filter.DueBefore.IsZero() {
		query += ` AND deadline < ?`
		args = append(args, filter.DueBefore)
	}
	query += ` ORDER BY deadline ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.ReviewTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, *task)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, kind, payload, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_class = excluded.error_class,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.Kind, string(entry.Payload), entry.Error, entry.ErrorClass,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, kind, payload, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.ErrorClass != "" {
		query += ` AND error_class = ?`
		args = append(args, filter.ErrorClass)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &e.Error, &e.ErrorClass,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var court, docType string
	var publishedAt sql.NullTime

	err := row.Scan(&src.ID, &src.Title, &src.Content, &src.Citation, &court, &docType,
		&src.Jurisdiction, &publishedAt, &src.URL, &src.ContentHash)
	if err != nil {
		return nil, err
	}
	src.Court = model.CourtLevel(court)
	src.DocumentType = model.DocumentType(docType)
	if publishedAt.Valid {
		src.PublishedAt = publishedAt.Time
	}
	return &src, nil
}
