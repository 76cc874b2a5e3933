package ingest

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/store"
	"github.com/counselstack/veritas/pkg/jina"
)

// maxDocumentBytes caps how much of a fetched document is kept. Legal
// sources past this size stop adding retrieval value and blow up the
// embedding payload.
const maxDocumentBytes = 1 << 20

// Report summarizes one seeding run.
type Report struct {
	Seeded  int
	Skipped int
	Failed  []string
}

// Seeder loads manifest entries into the source corpus.
type Seeder struct {
	store    store.Store
	embedder jina.Client
	fetcher  Fetcher
	batch    int
}

// NewSeeder creates a Seeder. batch bounds how many sources are embedded
// per API call.
func NewSeeder(st store.Store, embedder jina.Client, fetcher Fetcher, batch int) *Seeder {
	if batch <= 0 {
		batch = 16
	}
	return &Seeder{store: st, embedder: embedder, fetcher: fetcher, batch: batch}
}

// Seed validates, resolves, embeds, and upserts every manifest entry.
// Entries that fail validation or fetching are reported and skipped; the
// run keeps going. An embedding or store failure aborts the run, since
// nothing downstream can succeed without them.
func (s *Seeder) Seed(ctx context.Context, m *Manifest) (*Report, error) {
	report := &Report{}

	var sources []model.Source
	for _, entry := range m.Sources {
		if err := entry.Validate(); err != nil {
			zap.L().Warn("manifest entry rejected", zap.String("title", entry.Title), zap.Error(err))
			report.Skipped++
			report.Failed = append(report.Failed, entry.Title)
			continue
		}

		content, err := s.resolveContent(ctx, entry)
		if err != nil {
			zap.L().Warn("source content unavailable",
				zap.String("title", entry.Title),
				zap.Error(err))
			report.Skipped++
			report.Failed = append(report.Failed, entry.Title)
			continue
		}

		src := entry.Source(content)
		if src.ID == "" {
			src.ID = uuid.New().String()
		}
		sources = append(sources, src)
	}

	for chunk := range slices.Chunk(sources, s.batch) {
		texts := make([]string, len(chunk))
		for i, src := range chunk {
			texts[i] = embedText(src)
		}
		vecs, err := s.embedder.Embed(ctx, texts, jina.TaskPassage)
		if err != nil {
			return report, eris.Wrap(err, "ingest: embed sources")
		}
		if len(vecs) != len(chunk) {
			return report, eris.Errorf("ingest: embedder returned %d vectors for %d texts", len(vecs), len(chunk))
		}

		for i, src := range chunk {
			if err := s.store.UpsertSource(ctx, src, vecs[i]); err != nil {
				return report, eris.Wrapf(err, "ingest: upsert source %s", src.ID)
			}
			report.Seeded++
			zap.L().Info("source seeded",
				zap.String("source_id", src.ID),
				zap.String("title", src.Title),
				zap.String("document_type", string(src.DocumentType)))
		}
	}

	zap.L().Info("seeding complete",
		zap.Int("seeded", report.Seeded),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// resolveContent returns the entry body from inline content, a local
// file, or a fetched URL.
func (s *Seeder) resolveContent(ctx context.Context, entry Entry) (string, error) {
	switch {
	case entry.Content != "":
		return entry.Content, nil
	case entry.File != "":
		b, err := os.ReadFile(entry.File)
		if err != nil {
			return "", eris.Wrap(err, "ingest: read source file")
		}
		return string(b), nil
	default:
		body, err := s.fetcher.Fetch(ctx, entry.URL)
		if err != nil {
			return "", err
		}
		defer body.Close()
		b, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes))
		if err != nil {
			return "", eris.Wrap(err, "ingest: read fetched body")
		}
		return string(b), nil
	}
}

// embedText builds the text embedded for retrieval: title and citation
// prefix the content so short queries can land on them.
func embedText(src model.Source) string {
	var b strings.Builder
	b.WriteString(src.Title)
	b.WriteString("\n")
	b.WriteString(src.Citation)
	b.WriteString("\n")
	b.WriteString(src.Content)
	return b.String()
}
