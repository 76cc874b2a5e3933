package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
)

// minSurvivingFraction: when excision leaves less than half the original
// answer, the remainder is too mangled to stand and the answer is
// regenerated instead.
const minSurvivingFraction = 0.5

// correctionPass rewrites an answer whose flags demand removals. Flagged
// spans are excised first; when that guts more than half the answer, a
// fresh answer is generated from only the sources that validated
// cleanly. With no clean sources left the pipeline refuses rather than
// invent. Returns the new text and the passages backing it.
func (p *Pipeline) correctionPass(ctx context.Context, query, answer string, flags []model.FlaggedContent, validations []model.CitationValidation, passages []model.RetrievedPassage) (string, []model.RetrievedPassage) {
	excised := exciseFlaggedSpans(answer, flags)
	if float64(len(excised)) >= minSurvivingFraction*float64(len(answer)) {
		return excised, passages
	}

	clean := cleanPassages(passages, validations)
	if len(clean) == 0 {
		zap.L().Warn("no sources survived validation, refusing to answer")
		return refusalAnswer, nil
	}

	zap.L().Info("excision too deep, regenerating from clean sources",
		zap.Int("clean_sources", len(clean)),
		zap.Int("total_sources", len(passages)))

	req := buildRequest(query, clean, p.cfg.Anthropic.MaxTokens)
	text, degraded := p.generateAnswer(ctx, req, nil)
	if degraded {
		return refusalAnswer, nil
	}
	return text, clean
}

// exciseFlaggedSpans removes every span marked for removal and tidies
// the leftover whitespace. Overlapping spans merge into one cut.
func exciseFlaggedSpans(answer string, flags []model.FlaggedContent) string {
	spans := make([]model.Span, 0, len(flags))
	for _, f := range flags {
		if f.RequiresRemoval && f.Span != nil {
			spans = append(spans, *f.Span)
		}
	}
	if len(spans) == 0 {
		return answer
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		if s.Start > len(answer) {
			break
		}
		if s.Start < cursor {
			if s.End > cursor {
				cursor = min(s.End, len(answer))
			}
			continue
		}
		b.WriteString(answer[cursor:s.Start])
		cursor = min(s.End, len(answer))
	}
	if cursor < len(answer) {
		b.WriteString(answer[cursor:])
	}
	return tidyWhitespace(b.String())
}

// cleanPassages keeps only the passages no flagged validation points at.
func cleanPassages(passages []model.RetrievedPassage, validations []model.CitationValidation) []model.RetrievedPassage {
	dirty := make(map[string]bool)
	for _, v := range validations {
		if v.Status == model.StatusFlagged && v.SourceID != "" {
			dirty[v.SourceID] = true
		}
	}
	clean := make([]model.RetrievedPassage, 0, len(passages))
	for _, pass := range passages {
		if !dirty[pass.Source.ID] {
			clean = append(clean, pass)
		}
	}
	return clean
}

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

func tidyWhitespace(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ,", ",")
	return strings.TrimSpace(s)
}
