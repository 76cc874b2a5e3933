package pipeline

import (
	"strings"
	"time"

	"github.com/counselstack/veritas/internal/model"
)

// Authority rubric. Every source starts from the same base; court level,
// document type, jurisdiction, and age adjust it from there.
const (
	authorityBase = 50.0

	bonusSupremeCourt  = 40.0
	bonusCircuitCourt  = 30.0
	bonusDistrictCourt = 20.0

	bonusStatute    = 25.0
	bonusCaseLaw    = 20.0
	bonusRegulation = 15.0
	bonusSecondary  = 10.0

	bonusFederal = 5.0

	bonusRecent    = 5.0
	penaltyStale   = 5.0
	recentAgeYears = 5
	staleAgeYears  = 20
)

// AuthorityScore rates the legal weight of a source on a 0-100 scale.
// Court level adds up to 40 (supreme court), document type up to 25
// (statute > case law > regulation > secondary), and federal
// jurisdiction adds 5. Sources
// five years old or newer gain 5, sources older than twenty lose 5;
// undated sources take no age adjustment. The same rubric backs both
// citation validation and confidence scoring, so a source never carries
// two different weights through one run.
func AuthorityScore(src model.Source, now time.Time) float64 {
	score := authorityBase

	switch src.Court {
	case model.CourtSupreme:
		score += bonusSupremeCourt
	case model.CourtCircuit:
		score += bonusCircuitCourt
	case model.CourtDistrict:
		score += bonusDistrictCourt
	}

	switch src.DocumentType {
	case model.DocStatute:
		score += bonusStatute
	case model.DocCaseLaw:
		score += bonusCaseLaw
	case model.DocRegulation:
		score += bonusRegulation
	case model.DocSecondary:
		score += bonusSecondary
	}

	if strings.EqualFold(src.Jurisdiction, "federal") {
		score += bonusFederal
	}

	if !src.PublishedAt.IsZero() {
		switch age := src.AgeYears(now); {
		case age <= recentAgeYears:
			score += bonusRecent
		case age > staleAgeYears:
			score -= penaltyStale
		}
	}

	return clamp(score, 0, 100)
}
