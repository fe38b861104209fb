// Package settlement formats consensus scores for the downstream custody
// layer. The custody side consumes a probability rescaled to fixed-point
// integer basis points of one million; the transport to that layer lives
// outside this service.
package settlement

import (
	"fmt"
	"math"
)

// ScoreScale is the fixed-point denominator: a probability of 1.0 maps to
// 1_000_000.
const ScoreScale = 1_000_000

// Score is a consensus probability in its on-wire fixed-point form.
type Score struct {
	Probability float64 `json:"probability"`
	FixedPoint  int64   `json:"fixed_point"`
	Scale       int64   `json:"scale"`
}

// FromProbability rescales a probability in [0,1] into fixed-point form,
// rounding to the nearest unit.
func FromProbability(p float64) (Score, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Score{}, fmt.Errorf("probability %v outside [0,1]", p)
	}
	return Score{
		Probability: p,
		FixedPoint:  int64(math.Round(p * ScoreScale)),
		Scale:       ScoreScale,
	}, nil
}
