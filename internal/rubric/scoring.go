package rubric

import (
	"math"

	"github.com/dzackiero/cv-evaluation/internal/model"
)

// RawScore is one criterion's answer as produced by the LLM.
type RawScore struct {
	Score     int
	Reasoning string
}

// ScoreResult is the outcome of weighting a raw score map.
type ScoreResult struct {
	WeightedScore float64
	Criteria      model.CriteriaMap
}

// Score combines per-criterion 1-5 scores into a weighted 0-100
// percentage. Criteria missing from raw are skipped and excluded from
// the total weight, so a partial LLM answer degrades the score
// proportionally instead of counting as zero. Pure and deterministic.
func Score(r *Rubric, raw map[string]RawScore) ScoreResult {
	var weightedSum, totalWeight float64
	criteria := make(model.CriteriaMap, len(r.Criteria))

	for _, c := range r.Criteria {
		entry, ok := raw[c.Name]
		if !ok {
			continue
		}

		normalized := float64(entry.Score-1) / 4 * 100
		weightedSum += normalized * (c.Weight / 100)
		totalWeight += c.Weight

		criteria[c.Name] = model.CriterionScore{
			Score:       entry.Score,
			Reasoning:   entry.Reasoning,
			Weight:      c.Weight,
			DisplayName: c.DisplayName,
		}
	}

	if totalWeight <= 0 {
		return ScoreResult{WeightedScore: 0, Criteria: criteria}
	}
	return ScoreResult{WeightedScore: round(weightedSum, 2), Criteria: criteria}
}

// CvMatchRate converts a weighted score to the 0-1 match rate reported
// for the CV stage, rounded to 2 decimals.
func CvMatchRate(weightedScore float64) float64 {
	return round(weightedScore/100, 2)
}

// ProjectScore converts a weighted score to the 1.0-5.0 scale reported
// for the project stage, rounded to 1 decimal.
func ProjectScore(weightedScore float64) float64 {
	return round(weightedScore/100*4+1, 1)
}

func round(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
