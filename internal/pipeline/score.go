package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/counselstack/veritas/internal/model"
)

// Confidence component weights. They sum to 1.0; Overall is the weighted
// combination rounded to the nearest whole point.
const (
	weightQuality   = 0.25
	weightQuantity  = 0.15
	weightAlignment = 0.25
	weightAuthority = 0.20
	weightRecency   = 0.10
	weightConsensus = 0.05
)

// perSourcePoints is what each retrieved source contributes to the
// quantity and consensus components: five sources saturate both at 100.
const perSourcePoints = 20.0

// recencyDecayPerYear is how many freshness points a source loses per
// year of age.
const recencyDecayPerYear = 5.0

// ScoreAnswer computes the confidence breakdown for one answer from its
// retrieved passages and completed citation validations. The function is
// pure: same inputs, same score, no I/O. Validation must have joined
// before this runs; a partial validation set would understate alignment.
func ScoreAnswer(passages []model.RetrievedPassage, validations []model.CitationValidation, now time.Time) model.ConfidenceScore {
	score := model.ConfidenceScore{
		SourceQuality:     qualityComponent(passages),
		SourceQuantity:    saturatingCount(len(passages)),
		SemanticAlignment: alignmentComponent(validations),
		Authority:         authorityComponent(validations),
		Recency:           recencyComponent(passages, now),
		Consensus:         saturatingCount(len(passages)),
	}

	weighted := weightQuality*score.SourceQuality +
		weightQuantity*score.SourceQuantity +
		weightAlignment*score.SemanticAlignment +
		weightAuthority*score.Authority +
		weightRecency*score.Recency +
		weightConsensus*score.Consensus
	score.Overall = clamp(math.Round(weighted), 0, 100)
	score.Reasoning = scoreReasoning(score, passages, validations)
	return score
}

// qualityComponent is the mean retrieval relevance on a 0-100 scale.
func qualityComponent(passages []model.RetrievedPassage) float64 {
	if len(passages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range passages {
		sum += clamp(p.Relevance, 0, 1)
	}
	return sum / float64(len(passages)) * 100
}

// saturatingCount awards 20 points per source, capped at 100.
func saturatingCount(n int) float64 {
	return clamp(float64(n)*perSourcePoints, 0, 100)
}

// alignmentComponent is the mean citation-to-source similarity on a
// 0-100 scale. No citations means no measurable alignment, which scores
// zero rather than being skipped.
func alignmentComponent(validations []model.CitationValidation) float64 {
	if len(validations) == 0 {
		return 0
	}
	var sum float64
	for _, v := range validations {
		sum += clamp(v.Similarity, 0, 1)
	}
	return sum / float64(len(validations)) * 100
}

// authorityComponent is the mean authority across validated citations.
func authorityComponent(validations []model.CitationValidation) float64 {
	if len(validations) == 0 {
		return 0
	}
	var sum float64
	for _, v := range validations {
		sum += v.Authority
	}
	return sum / float64(len(validations))
}

// recencyComponent averages per-source freshness: each source starts at
// 100 and loses recencyDecayPerYear points per year of age, floored at
// zero.
func recencyComponent(passages []model.RetrievedPassage, now time.Time) float64 {
	if len(passages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range passages {
		sum += math.Max(0, 100-recencyDecayPerYear*float64(p.Source.AgeYears(now)))
	}
	return sum / float64(len(passages))
}

func scoreReasoning(score model.ConfidenceScore, passages []model.RetrievedPassage, validations []model.CitationValidation) string {
	verified := 0
	for _, v := range validations {
		if v.Status == model.StatusVerified {
			verified++
		}
	}
	return fmt.Sprintf(
		"%d sources retrieved (quality %.0f), %d/%d citations verified, alignment %.0f, authority %.0f, recency %.0f",
		len(passages), score.SourceQuality, verified, len(validations),
		score.SemanticAlignment, score.Authority, score.Recency,
	)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
