package service

import "math"

const (
	// ProbabilityEpsilon keeps probabilities strictly inside (0,1) so the
	// log/entropy terms stay finite.
	ProbabilityEpsilon = 1e-10

	// WeightSumTolerance is the allowed drift when checking that a weight
	// set sums to one.
	WeightSumTolerance = 1e-10
)

// ClampProbability restricts p to [ProbabilityEpsilon, 1-ProbabilityEpsilon].
func ClampProbability(p float64) float64 {
	if p < ProbabilityEpsilon {
		return ProbabilityEpsilon
	}
	if p > 1-ProbabilityEpsilon {
		return 1 - ProbabilityEpsilon
	}
	return p
}

// BinaryEntropy is H(p) = -p*log2(p) - (1-p)*log2(1-p), defined as 0 at the
// clamped extremes.
func BinaryEntropy(p float64) float64 {
	p = ClampProbability(p)
	if p <= ProbabilityEpsilon || p >= 1-ProbabilityEpsilon {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func validUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
