// Package ingest seeds the source corpus: it loads seed manifests, fetches
// document bodies over HTTP or FTP where the manifest points at a URL,
// embeds the content, and upserts each source into the store. Ingestion is
// the only writer of sources; the pipeline reads them immutably.
package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/counselstack/veritas/internal/model"
)

// Entry is one source in a seed manifest. Content comes from exactly one
// of Content (inline), File (local path), or URL (fetched).
type Entry struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Citation     string `yaml:"citation"`
	Court        string `yaml:"court"`
	DocumentType string `yaml:"document_type"`
	Jurisdiction string `yaml:"jurisdiction"`
	Published    string `yaml:"published"`
	URL          string `yaml:"url"`
	File         string `yaml:"file"`
	Content      string `yaml:"content"`
}

// Manifest is a set of sources to seed.
type Manifest struct {
	Sources []Entry `yaml:"sources"`
}

// publishedFormats are the accepted date layouts, most specific first.
var publishedFormats = []string{"2006-01-02", "2006-01", "2006"}

// Validate checks that the entry carries enough to become a source.
func (e Entry) Validate() error {
	var problems []string
	if e.Title == "" {
		problems = append(problems, "title is required")
	}
	if e.Citation == "" {
		problems = append(problems, "citation is required")
	}
	bodies := 0
	for _, v := range []string{e.Content, e.File, e.URL} {
		if v != "" {
			bodies++
		}
	}
	if bodies != 1 {
		problems = append(problems, "exactly one of content, file, url is required")
	}
	if e.DocumentType != "" {
		switch model.DocumentType(e.DocumentType) {
		case model.DocStatute, model.DocCaseLaw, model.DocRegulation, model.DocSecondary:
		default:
			problems = append(problems, "unknown document_type "+e.DocumentType)
		}
	}
	if e.Published != "" {
		if _, err := parsePublished(e.Published); err != nil {
			problems = append(problems, "unparseable published date "+e.Published)
		}
	}
	if len(problems) > 0 {
		return eris.New("ingest: " + e.Title + ": " + strings.Join(problems, "; "))
	}
	return nil
}

// Source converts the entry to a model.Source with the given body text.
// The content hash is stamped here, at ingestion time.
func (e Entry) Source(content string) model.Source {
	src := model.Source{
		ID:           e.ID,
		Title:        e.Title,
		Content:      content,
		Citation:     e.Citation,
		Court:        model.CourtLevel(e.Court),
		DocumentType: model.DocumentType(e.DocumentType),
		Jurisdiction: e.Jurisdiction,
		URL:          e.URL,
	}
	if src.DocumentType == "" {
		src.DocumentType = model.DocSecondary
	}
	if e.Published != "" {
		if t, err := parsePublished(e.Published); err == nil {
			src.PublishedAt = t
		}
	}
	src.ContentHash = model.SourceHash(src)
	return src
}

func parsePublished(s string) (time.Time, error) {
	for _, layout := range publishedFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("ingest: unparseable date %q", s)
}

// LoadManifest reads a seed manifest. YAML and XLSX are dispatched on the
// file extension.
func LoadManifest(path string) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported manifest format %q", filepath.Ext(path))
	}
}

func loadYAML(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrap(err, "ingest: parse yaml manifest")
	}
	return &m, nil
}

// xlsxColumns is the fixed column order of an XLSX manifest sheet. The
// first row is a header and is skipped.
var xlsxColumns = []string{
	"id", "title", "citation", "court", "document_type",
	"jurisdiction", "published", "url", "content",
}

func loadXLSX(path string) (*Manifest, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx manifest")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx manifest has no sheets")
	}

	var m Manifest
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		cells := make([]string, len(xlsxColumns))
		for j := range cells {
			if j < len(row.Cells) {
				cells[j] = strings.TrimSpace(row.Cells[j].String())
			}
		}
		if cells[1] == "" && cells[2] == "" {
			continue // blank row
		}
		m.Sources = append(m.Sources, Entry{
			ID:           cells[0],
			Title:        cells[1],
			Citation:     cells[2],
			Court:        cells[3],
			DocumentType: cells[4],
			Jurisdiction: cells[5],
			Published:    cells[6],
			URL:          cells[7],
			Content:      cells[8],
		})
	}
	return &m, nil
}
