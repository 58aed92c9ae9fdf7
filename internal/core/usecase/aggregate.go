package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

const defaultMaxRecommendations = 10

// ComputeVerdict folds per-file results into the session verdict. The fold
// is pure and commutative over results, so it yields the same verdict no
// matter which worker wins the aggregation claim or in what order files
// finished.
func ComputeVerdict(sessionID string, results []domain.FileProcessingResult, maxRecommendations int) domain.SessionVerdict {
	if maxRecommendations <= 0 {
		maxRecommendations = defaultMaxRecommendations
	}

	verdict := domain.SessionVerdict{
		SessionID:       sessionID,
		OverallRisk:     domain.RiskLow,
		HighRiskFiles:   []string{},
		Recommendations: []string{},
		TotalFiles:      len(results),
		CompletedAt:     time.Now().UTC(),
	}

	var (
		weightedSum float64
		weightTotal float64
		seenRecs    = map[string]struct{}{}
	)

	for i := range results {
		result := &results[i]
		if result.Failed() {
			verdict.FailedFiles++
			continue
		}

		fileWorst := domain.RiskLevel("")
		for _, assessment := range result.Assessments {
			if !assessment.IsValid {
				verdict.FalsePositives++
				continue
			}
			verdict.TotalDetections++
			verdict.OverallRisk = domain.WorstOf(verdict.OverallRisk, assessment.Level)
			fileWorst = domain.WorstOf(fileWorst, assessment.Level)

			weightedSum += assessment.Level.Score() * assessment.Confidence
			weightTotal += assessment.Confidence

			for _, rec := range assessment.Recommendations {
				if _, dup := seenRecs[rec]; dup {
					continue
				}
				seenRecs[rec] = struct{}{}
				if len(verdict.Recommendations) < maxRecommendations {
					verdict.Recommendations = append(verdict.Recommendations, rec)
				}
			}
		}

		if fileWorst.Value() >= domain.RiskHigh.Value() {
			verdict.HighRiskFiles = append(verdict.HighRiskFiles, result.Filename)
		}
	}

	if weightTotal > 0 {
		verdict.Score = math.Round(weightedSum/weightTotal*100) / 100
	}
	sort.Strings(verdict.HighRiskFiles)

	return verdict
}
