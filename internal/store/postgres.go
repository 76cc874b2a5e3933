package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/counselstack/veritas/internal/db"
	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
)

// vectorDims is the embedding width of the sources table. It matches the
// output dimension of the default embedding model.
const vectorDims = 1024

// PostgresStore implements Store using pgxpool with pgvector for retrieval.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_source": `SELECT id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash FROM sources WHERE id = $1`,
	"get_record": `SELECT id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at FROM validation_records WHERE id = $1`,
	"get_task":   `SELECT id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at FROM review_tasks WHERE id = $1`,
	"set_record_review_state": `UPDATE validation_records SET review_state = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., bulk corpus seeding).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	citation      TEXT NOT NULL DEFAULT '',
	court         TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	published_at  TIMESTAMPTZ,
	url           TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	embedding     vector(1024),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sources_citation ON sources(citation);
CREATE INDEX IF NOT EXISTS idx_sources_document_type ON sources(document_type);

CREATE TABLE IF NOT EXISTS validation_records (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	answer       TEXT NOT NULL,
	answer_hash  TEXT NOT NULL,
	confidence   JSONB NOT NULL,
	citations    JSONB,
	validations  JSONB,
	flags        JSONB,
	review_state TEXT NOT NULL DEFAULT 'not_reviewed',
	bundle_hash  TEXT NOT NULL UNIQUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_review_state ON validation_records(review_state);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON validation_records(created_at DESC);

CREATE TABLE IF NOT EXISTS review_tasks (
	id             TEXT PRIMARY KEY,
	record_id      TEXT NOT NULL REFERENCES validation_records(id),
	task_type      TEXT NOT NULL,
	priority       TEXT NOT NULL,
	content        TEXT NOT NULL,
	reason         TEXT NOT NULL,
	deadline       TIMESTAMPTZ NOT NULL,
	assigned_to    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	decision       TEXT NOT NULL DEFAULT '',
	reviewer_notes TEXT NOT NULL DEFAULT '',
	modified_text  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_record_id ON review_tasks(record_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON review_tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON review_tasks(deadline);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_class    TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_kind ON dead_letter_queue(kind);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// formatVector formats an embedding vector as a pgvector literal.
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// nullableVector returns a pgvector literal, or nil when the embedding is
// absent so the column stays NULL.
func nullableVector(embedding []float64) any {
	if len(embedding) == 0 {
		return nil
	}
	return formatVector(embedding)
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.Source, embedding []float64) error {
	if len(embedding) > 0 && len(embedding) != vectorDims {
		return eris.Errorf("postgres: embedding must be %d dimensions, got %d", vectorDims, len(embedding))
	}

	var publishedAt *time.Time
	if !src.PublishedAt.IsZero() {
		publishedAt = &src.PublishedAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash, embedding, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector, now())
		 ON CONFLICT (id) DO UPDATE SET
		   title = $2, content = $3, citation = $4, court = $5, document_type = $6,
		   jurisdiction = $7, published_at = $8, url = $9, content_hash = $10,
		   embedding = $11::vector, updated_at = now()`,
		src.ID, src.Title, src.Content, src.Citation, string(src.Court), string(src.DocumentType),
		src.Jurisdiction, publishedAt, src.URL, src.ContentHash, nullableVector(embedding),
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.ID)
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	var src model.Source
	var publishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash
		 FROM sources WHERE id = $1`,
		id,
	).Scan(&src.ID, &src.Title, &src.Content, &src.Citation, &src.Court, &src.DocumentType,
		&src.Jurisdiction, &publishedAt, &src.URL, &src.ContentHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source %s", id)
	}
	if publishedAt != nil {
		src.PublishedAt = *publishedAt
	}
	return &src, nil
}

func (s *PostgresStore) SearchSources(ctx context.Context, embedding []float64, topK int) ([]model.RetrievedPassage, error) {
	if len(embedding) != vectorDims {
		return nil, eris.Errorf("postgres: embedding must be %d dimensions, got %d", vectorDims, len(embedding))
	}
	if topK <= 0 {
		topK = 5
	}

	vectorStr := formatVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, citation, court, document_type, jurisdiction, published_at, url, content_hash,
		        1 - (embedding <=> $1::vector) AS relevance
		 FROM sources
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		vectorStr, topK,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search sources")
	}
	defer rows.Close()

	var passages []model.RetrievedPassage
	for rows.Next() {
		var p model.RetrievedPassage
		var publishedAt *time.Time
		if err := rows.Scan(&p.Source.ID, &p.Source.Title, &p.Source.Content, &p.Source.Citation,
			&p.Source.Court, &p.Source.DocumentType, &p.Source.Jurisdiction, &publishedAt,
			&p.Source.URL, &p.Source.ContentHash, &p.Relevance); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if publishedAt != nil {
			p.Source.PublishedAt = *publishedAt
		}
		passages = append(passages, p)
	}
	return passages, eris.Wrap(rows.Err(), "postgres: search sources iterate")
}

func (s *PostgresStore) CountSources(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count sources")
}

// InsertRecord persists a validation record. Records are write-once: a second
// insert with the same bundle hash is a no-op and returns false.
func (s *PostgresStore) InsertRecord(ctx context.Context, rec *model.ValidationRecord) (bool, error) {
	confidenceJSON, citationsJSON, validationsJSON, flagsJSON, err := marshalRecordParts(rec)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO validation_records
		 (id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (bundle_hash) DO NOTHING`,
		rec.ID, rec.Query, rec.Answer, rec.AnswerHash,
		confidenceJSON, citationsJSON, validationsJSON, flagsJSON,
		string(rec.ReviewState), rec.BundleHash, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ValidationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at
		 FROM validation_records WHERE id = $1`,
		id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ValidationRecord, error) {
	query := `SELECT id, query, answer, answer_hash, confidence, citations, validations, flags, review_state, bundle_hash, created_at
	          FROM validation_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ReviewState != "" {
		query += fmt.Sprintf(` AND review_state = $%d`, argIdx)
		args = append(args, string(filter.ReviewState))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CountRecordsByState(ctx context.Context) (map[model.ReviewState]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT review_state, COUNT(*) FROM validation_records GROUP BY review_state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count records by state")
	}
	defer rows.Close()

	counts := make(map[model.ReviewState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record count")
		}
		counts[model.ReviewState(state)] = count
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count records iterate")
}

func (s *PostgresStore) SetRecordReviewState(ctx context.Context, recordID string, state model.ReviewState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE validation_records SET review_state = $1 WHERE id = $2`,
		string(state), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set record review state %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", recordID)
	}
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *model.ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_tasks
		 (id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.RecordID, task.TaskType, string(task.Priority), task.Content, task.Reason,
		task.Deadline, task.AssignedTo, string(task.Status), string(task.Decision),
		task.ReviewerNotes, task.ModifiedText, task.CreatedAt, task.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert task for record %s", task.RecordID)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.ReviewTask, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at
		 FROM review_tasks WHERE id = $1`,
		id,
	)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}
	return task, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *model.ReviewTask) error {
	task.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE review_tasks
		 SET priority = $1, status = $2, decision = $3, reviewer_notes = $4, modified_text = $5,
		     assigned_to = $6, deadline = $7, updated_at = $8
		 WHERE id = $9`,
		string(task.Priority), string(task.Status), string(task.Decision),
		task.ReviewerNotes, task.ModifiedText, task.AssignedTo, task.Deadline,
		task.UpdatedAt, task.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update task %s", task.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("task not found: %s", task.ID)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.ReviewTask, error) {
	query := `SELECT id, record_id, task_type, priority, content, reason, deadline, assigned_to, status, decision, reviewer_notes, modified_text, created_at, updated_at
	          FROM review_tasks WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	if !filter.DueBefore.IsZero() {
		query += fmt.Sprintf(` AND deadline < $%d`, argIdx)
		args = append(args, filter.DueBefore)
		argIdx++
	}
	query += ` ORDER BY deadline ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.ReviewTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, *task)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, kind, payload, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_class = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, entry.Kind, []byte(entry.Payload), entry.Error, entry.ErrorClass,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, kind, payload, error, error_class, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}
	if filter.ErrorClass != "" {
		query += fmt.Sprintf(` AND error_class = $%d`, argIdx)
		args = append(args, filter.ErrorClass)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &e.Error, &e.ErrorClass,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// helpers

func marshalRecordParts(rec *model.ValidationRecord) (confidence, citations, validations, flags []byte, err error) {
	if confidence, err = json.Marshal(rec.Confidence); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal confidence")
	}
	if citations, err = json.Marshal(rec.Citations); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal citations")
	}
	if validations, err = json.Marshal(rec.Validations); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal validations")
	}
	if flags, err = json.Marshal(rec.Flags); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal flags")
	}
	return confidence, citations, validations, flags, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.ValidationRecord, error) {
	var rec model.ValidationRecord
	var confidenceJSON, citationsJSON, validationsJSON, flagsJSON []byte
	var state string

	if err := row.Scan(&rec.ID, &rec.Query, &rec.Answer, &rec.AnswerHash,
		&confidenceJSON, &citationsJSON, &validationsJSON, &flagsJSON,
		&state, &rec.BundleHash, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.ReviewState = model.ReviewState(state)

	if err := json.Unmarshal(confidenceJSON, &rec.Confidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal confidence")
	}
	if len(citationsJSON) > 0 {
		if err := json.Unmarshal(citationsJSON, &rec.Citations); err != nil {
			return nil, eris.Wrap(err, "unmarshal citations")
		}
	}
	if len(validationsJSON) > 0 {
		if err := json.Unmarshal(validationsJSON, &rec.Validations); err != nil {
			return nil, eris.Wrap(err, "unmarshal validations")
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
			return nil, eris.Wrap(err, "unmarshal flags")
		}
	}
	return &rec, nil
}

func scanTask(row scannable) (*model.ReviewTask, error) {
	var task model.ReviewTask
	var priority, status, decision string

	if err := row.Scan(&task.ID, &task.RecordID, &task.TaskType, &priority, &task.Content,
		&task.Reason, &task.Deadline, &task.AssignedTo, &status, &decision,
		&task.ReviewerNotes, &task.ModifiedText, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.Priority = model.TaskPriority(priority)
	task.Status = model.TaskStatus(status)
	task.Decision = model.ReviewDecision(decision)
	return &task, nil
}
