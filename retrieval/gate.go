package retrieval

import "knowledge/types"

const DefaultWeakMatchFloor = 0.50

// Gate decides whether a reranked set may ground an answer.
type Gate struct {
	Strategy       types.Strategy
	WeakMatchFloor float64
}

func NewGate(strategy types.Strategy, weakMatchFloor float64) Gate {
	return Gate{Strategy: strategy, WeakMatchFloor: weakMatchFloor}
}

// Groundable is false for an empty set, for low confidence, and, with semantic
// retrieval only, when the best score is under the weak match floor.
func (g Gate) Groundable(ranked []types.RankedResult, confidence types.Confidence) bool {
	if len(ranked) == 0 || confidence == types.ConfidenceLow {
		return false
	}
	if g.Strategy == types.StrategySemantic && maxScore(ranked) < g.WeakMatchFloor {
		return false
	}
	return true
}

func maxScore(ranked []types.RankedResult) float64 {
	best := ranked[0].Score
	for _, r := range ranked[1:] {
		best = max(best, r.Score)
	}
	return best
}
