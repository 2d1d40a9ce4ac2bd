package search

import "sort"

// ScoreWeights combine geometric and embedding evidence:
// score = Inlier*inliers + Similarity*(similarity - Baseline).
// Inliers dominate; similarity separates candidates with similar support.
type ScoreWeights struct {
	Inlier     float64
	Similarity float64
	Baseline   float64
}

// DefaultScoreWeights returns 2, 50 and 0.5.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Inlier: 2, Similarity: 50, Baseline: 0.5}
}

// Score combines an inlier count with an optional similarity.
func (w ScoreWeights) Score(inliers int, similarity *float64) float64 {
	s := w.Inlier * float64(inliers)
	if similarity != nil {
		s += w.Similarity * (*similarity - w.Baseline)
	}
	return s
}

// Rank orders results by score, then inlier count, then candidate id.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.InlierCount() != b.InlierCount() {
			return a.InlierCount() > b.InlierCount()
		}
		return a.CandidateID < b.CandidateID
	})
}
