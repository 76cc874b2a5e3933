package model

import "time"

// DocumentType classifies a legal source by its kind of authority.
type DocumentType string

const (
	DocStatute    DocumentType = "statute"
	DocCaseLaw    DocumentType = "case_law"
	DocRegulation DocumentType = "regulation"
	DocSecondary  DocumentType = "secondary"
)

// CourtLevel identifies where a court sits in the federal hierarchy.
type CourtLevel string

const (
	CourtSupreme  CourtLevel = "supreme"
	CourtCircuit  CourtLevel = "circuit"
	CourtDistrict CourtLevel = "district"
	CourtNone     CourtLevel = ""
)

// Source is a retrievable unit of legal content. Sources are created by
// ingestion and are read-only to the pipeline.
type Source struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Citation     string       `json:"citation"`
	Court        CourtLevel   `json:"court,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	Jurisdiction string       `json:"jurisdiction,omitempty"`
	PublishedAt  time.Time    `json:"published_at"`
	URL          string       `json:"url,omitempty"`
	ContentHash  string       `json:"content_hash,omitempty"` // set at ingestion, compared at validation
}

// AgeYears returns the source age in whole calendar years at the given time.
func (s Source) AgeYears(now time.Time) int {
	if s.PublishedAt.IsZero() {
		return 0
	}
	years := now.Year() - s.PublishedAt.Year()
	if years < 0 {
		return 0
	}
	return years
}

// RetrievedPassage pairs a source with its relevance to one query.
// Passages live only for the duration of a single pipeline invocation.
type RetrievedPassage struct {
	Source    Source  `json:"source"`
	Relevance float64 `json:"relevance"`
}
