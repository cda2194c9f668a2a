package assessment

import (
	"math"

	"github.com/joelkehle/inventavault/internal/patent"
)

const (
	// NoPriorArtScore is the presumed-novelty score for an empty result set.
	NoPriorArtScore = 85
	// HighSimilarityPenalty is subtracted once per high-similarity reference.
	HighSimilarityPenalty = 15
)

var tierSteps = map[patent.Tier][]string{
	patent.TierHigh: {
		"Patent shows high patentability - proceed with formal filing",
		"Prepare formal patent application with USPTO",
		"Conduct professional prior art search for confirmation",
		"Consider filing provisional patent application for early priority date",
	},
	patent.TierModerate: {
		"Moderate patentability - refine claims before filing",
		"Modify invention claims to emphasize novel aspects",
		"Conduct additional prior art research",
		"Consult with patent attorney for claim strategy",
	},
	patent.TierLow: {
		"Low patentability - significant modifications needed",
		"Major revision of invention concept required",
		"Extensive prior art analysis and claim differentiation",
		"Mandatory consultation with patent professional",
		"Consider alternative IP protection strategies",
	},
}

var universalSteps = []string{
	"Document saved to blockchain for permanent record",
	"Patent documentation available for download and printing",
}

// Assess estimates patentability from the prior art found for an idea.
func Assess(set patent.ResultSet) patent.Assessment {
	score := NoPriorArtScore
	if !set.IsEmpty() {
		total := 0
		for _, ref := range set {
			total += ref.RelevanceScore
		}
		mean := float64(total) / float64(len(set))
		raw := 100 - mean - float64(HighSimilarityPenalty*set.CountBySimilarity(patent.SimilarityHigh))
		score = clamp(int(math.Round(raw)))
	}
	tier := patent.TierFor(score)
	return patent.Assessment{Score: score, Tier: tier, Recommendations: Recommendations(tier)}
}

// Recommendations returns the next steps for tier followed by the steps every
// document gets.
func Recommendations(tier patent.Tier) []string {
	steps := tierSteps[tier]
	out := make([]string, 0, len(steps)+len(universalSteps))
	out = append(out, steps...)
	return append(out, universalSteps...)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
