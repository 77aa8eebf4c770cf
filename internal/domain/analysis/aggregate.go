package analysis

import "fmt"

// Aggregation weights: the mean resists single-outlier false positives,
// the max still rewards any strongly flagged unit.
const (
	meanWeight = 0.7
	maxWeight  = 0.3
)

// Verdict is the aggregated per-job outcome.
type Verdict struct {
	Confidence float64
	IsFake     bool
	Mean       float64
	Max        float64
}

// Aggregate combines per-unit scores into a single verdict. Pure
// function: same units and threshold always yield the same verdict.
// Zero units is an error, never a default score.
func Aggregate(units []Unit, threshold float64) (Verdict, error) {
	if len(units) == 0 {
		return Verdict{}, fmt.Errorf("aggregate: no units to score: %w", ErrCorruptInput)
	}

	var sum, maxScore float64
	for i := range units {
		s := Clamp01(units[i].Score)
		sum += s
		if s > maxScore {
			maxScore = s
		}
	}
	mean := sum / float64(len(units))

	confidence := mean
	if len(units) > 1 {
		confidence = meanWeight*mean + maxWeight*maxScore
	}
	confidence = Clamp01(confidence)

	return Verdict{
		Confidence: confidence,
		IsFake:     confidence >= threshold,
		Mean:       mean,
		Max:        maxScore,
	}, nil
}

// InLowTrustBand reports whether a model score lands close enough to
// the decision threshold that it should not stand on its own. Both band
// edges are inside the band.
func InLowTrustBand(score, threshold, band float64) bool {
	d := score - threshold
	if d < 0 {
		d = -d
	}
	return d <= band
}

// Clamp01 pins a score into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
