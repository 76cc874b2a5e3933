package pipeline

import (
	"fmt"
	"strings"

	"github.com/counselstack/veritas/internal/model"
)

// Flagging thresholds on the overall confidence scale.
const (
	lowConfidenceBelow      = 50.0
	criticalConfidenceBelow = 25.0
)

// hallucinationPhrases are sweeping assertions that demand a source.
// A sentence containing one with no [Source N] marker is flagged.
var hallucinationPhrases = []string{
	"courts have consistently held",
	"it is well established that",
	"universally recognized",
}

// FlagAnswer runs the content rules over a scored answer. Rules are
// additive; one answer can carry several flags, and an empty result is
// the success case.
//
// An answer below 50 overall is flagged low confidence, critical below
// 25. Every citation that failed validation becomes an inaccuracy flag
// demanding removal of its span. Unsourced sweeping assertions become
// hallucination flags. An answer with no citations at all is flagged
// missing source unless the pipeline already degraded it. Citations that
// verified but fell short of the strict similarity bar get a medium
// semantic-mismatch flag with no removal.
func FlagAnswer(answer string, conf model.ConfidenceScore, citations []model.Citation, validations []model.CitationValidation, strictSimilarity float64, degraded bool) []model.FlaggedContent {
	var flags []model.FlaggedContent

	if conf.Overall < lowConfidenceBelow {
		sev := model.SeverityHigh
		if conf.Overall < criticalConfidenceBelow {
			sev = model.SeverityCritical
		}
		flags = append(flags, model.FlaggedContent{
			Type:            model.FlagLowConfidence,
			Severity:        sev,
			Description:     fmt.Sprintf("overall confidence %.0f is below %.0f", conf.Overall, lowConfidenceBelow),
			RequiresRemoval: conf.Overall < criticalConfidenceBelow,
		})
	}

	spansByID := make(map[string]model.Span, len(citations))
	for _, c := range citations {
		spansByID[c.ID] = c.Span
	}
	for _, v := range validations {
		if v.Status != model.StatusFlagged {
			continue
		}
		flag := model.FlaggedContent{
			Type:            model.FlagInaccuracy,
			Severity:        model.SeverityHigh,
			Description:     fmt.Sprintf("citation %s failed validation", v.CitationID),
			RequiresRemoval: true,
			CitationID:      v.CitationID,
		}
		if span, ok := spansByID[v.CitationID]; ok {
			flag.Span = &span
		}
		flags = append(flags, flag)
	}

	flags = append(flags, hallucinationFlags(answer)...)

	if len(citations) == 0 && !degraded {
		flags = append(flags, model.FlaggedContent{
			Type:        model.FlagMissingSource,
			Severity:    model.SeverityHigh,
			Description: "answer cites no sources",
		})
	}

	for _, v := range validations {
		if v.Status == model.StatusVerified && v.Similarity < strictSimilarity {
			flags = append(flags, model.FlaggedContent{
				Type:        model.FlagSemanticMismatch,
				Severity:    model.SeverityMedium,
				Description: fmt.Sprintf("citation %s verified at similarity %.2f, below the strict %.2f bar", v.CitationID, v.Similarity, strictSimilarity),
				CitationID:  v.CitationID,
			})
		}
	}

	return flags
}

// hallucinationFlags finds sweeping unsupported assertions. The answer is
// split into sentences; each hallucination phrase in a sentence carrying
// no [Source N] marker earns one flag pointing at the phrase.
func hallucinationFlags(answer string) []model.FlaggedContent {
	var flags []model.FlaggedContent
	for _, s := range splitSentences(answer) {
		if markerPattern.MatchString(s.text) {
			continue
		}
		lower := strings.ToLower(s.text)
		for _, phrase := range hallucinationPhrases {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				continue
			}
			span := model.Span{Start: s.start + idx, End: s.start + idx + len(phrase)}
			flags = append(flags, model.FlaggedContent{
				Type:        model.FlagHallucination,
				Severity:    model.SeverityHigh,
				Description: fmt.Sprintf("sweeping assertion %q has no supporting source", phrase),
				Span:        &span,
			})
		}
	}
	return flags
}

type sentence struct {
	text  string
	start int
}

// splitSentences breaks text on sentence-ending punctuation, keeping each
// sentence's byte offset. Periods inside citations ("U.S.", "v.",
// "Supp.") do not end a sentence.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminator(text[i]) || !boundaryAfter(text, i) {
			continue
		}
		if seg := text[start : i+1]; strings.TrimSpace(seg) != "" {
			out = append(out, sentence{text: seg, start: start})
		}
		j := i + 1
		for j < len(text) && isSpaceByte(text[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(text) {
		if seg := text[start:]; strings.TrimSpace(seg) != "" {
			out = append(out, sentence{text: seg, start: start})
		}
	}
	return out
}

// Abbreviations whose trailing period never ends a sentence. Single
// letter tokens ("v", initials) are handled separately.
var nonTerminalTokens = map[string]bool{
	"U.S":   true,
	"U.S.C": true,
	"Ct":    true,
	"Supp":  true,
	"Ed":    true,
	"No":    true,
	"Stat":  true,
}

func boundaryAfter(text string, i int) bool {
	if text[i] == '!' || text[i] == '?' {
		return i+1 == len(text) || isSpaceByte(text[i+1])
	}
	if i+1 < len(text) && !isSpaceByte(text[i+1]) {
		return false
	}
	j := i - 1
	for j >= 0 && !isSpaceByte(text[j]) {
		j--
	}
	token := text[j+1 : i]
	if len(token) <= 1 {
		return false
	}
	return !nonTerminalTokens[token]
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
