package model

// CitationKind identifies which matcher produced a citation.
type CitationKind string

const (
	CitationMarker   CitationKind = "marker"    // [Source N]
	CitationReporter CitationKind = "reporter"  // 410 U.S. 113
	CitationCaseName CitationKind = "case_name" // Roe v. Wade
	CitationStatute  CitationKind = "statute"   // 42 U.S.C. § 1983
)

// Span marks a byte range within generated answer text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Citation is a span of generated text claiming to reference a source.
// Citations are never mutated after extraction; validation outcomes live
// in the companion CitationValidation record.
type Citation struct {
	ID          string       `json:"id"`
	Raw         string       `json:"raw"`
	Kind        CitationKind `json:"kind"`
	Span        Span         `json:"span"`
	Context     string       `json:"context"`
	SourceIndex int          `json:"source_index,omitempty"` // 1-based for marker citations, 0 otherwise
}

// ValidationStatus is the outcome class for one citation.
type ValidationStatus string

const (
	StatusVerified  ValidationStatus = "verified"
	StatusFlagged   ValidationStatus = "flagged"
	StatusCorrected ValidationStatus = "corrected"
	StatusRemoved   ValidationStatus = "removed"
)

// CitationValidation is the write-once validation outcome for one citation.
type CitationValidation struct {
	CitationID   string           `json:"citation_id"`
	SourceID     string           `json:"source_id,omitempty"`
	ContentHash  string           `json:"content_hash,omitempty"`
	HashIntact   bool             `json:"hash_intact"`
	TextualMatch bool             `json:"textual_match"`
	Similarity   float64          `json:"similarity"`
	Authority    float64          `json:"authority"`
	Status       ValidationStatus `json:"status"`
}
