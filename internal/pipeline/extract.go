package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/counselstack/veritas/internal/model"
)

// citationContextWindow is how many bytes of surrounding answer text
// travel with each citation for comparison against its source.
const citationContextWindow = 100

var markerPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// Citation matchers, tried in order. When two matches overlap, the
// earlier matcher wins the span.
var citationMatchers = []struct {
	kind    model.CitationKind
	pattern *regexp.Regexp
}{
	{model.CitationMarker, markerPattern},
	{model.CitationReporter, regexp.MustCompile(`\b\d{1,4}\s+(?:U\.S\.|S\.\s?Ct\.|F\.[234]d|F\.\s?Supp\.(?:\s?[23]d)?|L\.\s?Ed\.\s?2d)\s+\d{1,5}\b`)},
	{model.CitationCaseName, regexp.MustCompile(`\b[A-Z][A-Za-z.'\-]*(?:\s+[A-Z][A-Za-z.'\-]*)*\s+v\.\s+[A-Z][A-Za-z.'\-]*(?:\s+[A-Z][A-Za-z.'\-]*)*`)},
	{model.CitationStatute, regexp.MustCompile(`\b\d{1,3}\s+U\.S\.C\.\s+§§?\s*\d+[a-z]?(?:\([a-zA-Z0-9]+\))*|§§?\s*\d+[a-z]?(?:\([a-zA-Z0-9]+\))*`)},
}

// ExtractCitations scans generated answer text for source references.
// Four matchers run in order: bracketed [Source N] markers, reporter
// citations (410 U.S. 113), case names (Roe v. Wade), and statutory
// citations (42 U.S.C. § 1983). A span claimed by one matcher is skipped
// by later ones, so a reporter string inside an already-matched region is
// not counted twice. Citations come back in order of appearance with
// sequential IDs.
func ExtractCitations(text string) []model.Citation {
	type match struct {
		kind        model.CitationKind
		span        model.Span
		sourceIndex int
	}
	var accepted []match

	for _, m := range citationMatchers {
		for _, loc := range m.pattern.FindAllStringSubmatchIndex(text, -1) {
			span := model.Span{Start: loc[0], End: loc[1]}
			taken := false
			for _, a := range accepted {
				if span.Start < a.span.End && a.span.Start < span.End {
					taken = true
					break
				}
			}
			if taken {
				continue
			}
			mt := match{kind: m.kind, span: span}
			if m.kind == model.CitationMarker && len(loc) >= 4 && loc[2] >= 0 {
				if n, err := strconv.Atoi(text[loc[2]:loc[3]]); err == nil {
					mt.sourceIndex = n
				}
			}
			accepted = append(accepted, mt)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].span.Start < accepted[j].span.Start })

	citations := make([]model.Citation, 0, len(accepted))
	for i, mt := range accepted {
		citations = append(citations, model.Citation{
			ID:          fmt.Sprintf("cite-%d", i+1),
			Raw:         text[mt.span.Start:mt.span.End],
			Kind:        mt.kind,
			Span:        mt.span,
			Context:     contextWindow(text, mt.span),
			SourceIndex: mt.sourceIndex,
		})
	}
	return citations
}

// contextWindow returns the answer text surrounding a span, clipped to
// rune boundaries so multibyte section symbols survive intact.
func contextWindow(text string, span model.Span) string {
	start := span.Start - citationContextWindow
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := span.End + citationContextWindow
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}
