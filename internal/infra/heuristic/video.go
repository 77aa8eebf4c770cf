package heuristic

import "math"

// TemporalConsistency maps the variance of per-frame scores into (0,1].
// Genuine footage scores steadily; frame-by-frame manipulation tends to
// flicker.
func TemporalConsistency(frameScores []float64) float64 {
	if len(frameScores) < 2 {
		return 1.0
	}
	var mean float64
	for _, s := range frameScores {
		mean += s
	}
	mean /= float64(len(frameScores))

	var variance float64
	for _, s := range frameScores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(frameScores))

	return math.Min(1.0/(1.0+variance*10), 1.0)
}

// TemporalCue names the cue emitted when frame scores disagree.
func TemporalCue(consistency float64) (string, bool) {
	if consistency < 0.5 {
		return cueTemporalBreaks, true
	}
	return "", false
}
