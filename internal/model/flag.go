package model

// FlagType classifies a problem found in a generated answer.
type FlagType string

const (
	FlagHallucination    FlagType = "hallucination"
	FlagInaccuracy       FlagType = "inaccuracy"
	FlagLowConfidence    FlagType = "low_confidence"
	FlagMissingSource    FlagType = "missing_source"
	FlagSemanticMismatch FlagType = "semantic_mismatch"
)

// Severity ranks how serious a flag is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FlaggedContent is one problem found in an answer. An empty flag list is
// the success case.
type FlaggedContent struct {
	Type            FlagType `json:"type"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	RequiresRemoval bool     `json:"requires_removal"`
	Span            *Span    `json:"span,omitempty"`
	CitationID      string   `json:"citation_id,omitempty"`
}

// CountSeverity returns how many flags carry the given severity.
func CountSeverity(flags []FlaggedContent, sev Severity) int {
	n := 0
	for _, f := range flags {
		if f.Severity == sev {
			n++
		}
	}
	return n
}
