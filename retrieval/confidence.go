package retrieval

import "knowledge/types"

// Thresholds are lower bounds on the mean score.
type Thresholds struct {
	High   float64
	Medium float64
}

var (
	SemanticThresholds = Thresholds{High: 0.75, Medium: 0.50}
	LexicalThresholds  = Thresholds{High: 0.10, Medium: 0.01}
)

func ThresholdsFor(strategy types.Strategy) Thresholds {
	if strategy == types.StrategyLexical {
		return LexicalThresholds
	}
	return SemanticThresholds
}

// Classify labels a reranked set by the mean of its scores.
func Classify(ranked []types.RankedResult, strategy types.Strategy) types.Confidence {
	if len(ranked) == 0 {
		return types.ConfidenceLow
	}
	var sum float64
	for _, r := range ranked {
		sum += r.Score
	}
	mean := sum / float64(len(ranked))

	t := ThresholdsFor(strategy)
	switch {
	case mean >= t.High:
		return types.ConfidenceHigh
	case mean >= t.Medium:
		return types.ConfidenceMedium
	}
	return types.ConfidenceLow
}
