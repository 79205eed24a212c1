package scoring

import (
	"math"

	"github.com/martin/jobpilot/internal/packs"
	"github.com/martin/jobpilot/internal/types"
)

// Category weights for the overall score. Evidence strength dominates; the
// remaining categories come from the model's assessment of the resume text.
const (
	weightEvidence   = 0.50
	weightKeywords   = 0.20
	weightFormatting = 0.15
	weightRoleFit    = 0.15
)

// verdict is one requirement verdict feeding the formula.
type verdict struct {
	Group  types.RequirementType
	Status types.EvidenceStatus
}

// groupScore converts a tally to 0-100. A partial match earns half credit.
func groupScore(matched, partial, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * (float64(matched) + 0.5*float64(partial)) / float64(total)
}

// evidenceScore combines per-group scores through the pack weight vector.
// Groups with no requirements are excluded and the remaining weights are
// renormalized, so a posting with no softskill lines is not penalized for
// the empty group.
func evidenceScore(verdicts []verdict, pack *packs.Pack) (float64, types.EvidenceCounts) {
	type tally struct{ matched, partial, total int }
	tallies := make(map[types.RequirementType]*tally)
	var counts types.EvidenceCounts

	for _, v := range verdicts {
		tl := tallies[v.Group]
		if tl == nil {
			tl = &tally{}
			tallies[v.Group] = tl
		}
		tl.total++
		switch v.Status {
		case types.EvidenceMatched:
			tl.matched++
			counts.Matched++
		case types.EvidencePartial:
			tl.partial++
			counts.Partial++
		default:
			counts.Missing++
		}
	}

	var weightSum, weighted float64
	for group, tl := range tallies {
		w := pack.Weights[group]
		weightSum += w
		weighted += w * groupScore(tl.matched, tl.partial, tl.total)
	}
	if weightSum == 0 {
		return 0, counts
	}
	return weighted / weightSum, counts
}

// overallScore composes the category scores and subtracts eligibility
// penalties, clamped to 0-100.
func overallScore(evidence, keywords, formatting, roleFit float64, flags []types.EligibilityFlag) float64 {
	score := weightEvidence*evidence +
		weightKeywords*clamp(keywords) +
		weightFormatting*clamp(formatting) +
		weightRoleFit*clamp(roleFit)
	for _, f := range flags {
		score -= f.Penalty
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
