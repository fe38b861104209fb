package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

const (
	// RidgeEpsilon regularizes the 2x2 least-squares system.
	RidgeEpsilon = 1e-6

	// DefaultQualityFloor is the decomposition quality below which callers
	// fall back to the naive aggregate.
	DefaultQualityFloor = 0.3
)

// DecompositionResult is the factor-model posterior plus a quality signal.
type DecompositionResult struct {
	Aggregate float64 `json:"aggregate"`
	Quality   float64 `json:"decomposition_quality"`
}

// DecompositionService aggregates through a two-state factor model: a 2x2
// transition matrix fit by ridge-regularized least squares from each agent's
// belief distribution to their meta-prediction distribution, whose fixed
// point yields a prior over the latent state; agent beliefs then update that
// prior into a posterior.
//
// The 2x2 system is solved with a closed-form inverse rather than a general
// linear-algebra package so results are bit-reproducible.
type DecompositionService struct {
	submissions domain.SubmissionStore
	logger      *zap.Logger
}

func NewDecompositionService(submissions domain.SubmissionStore, logger *zap.Logger) *DecompositionService {
	return &DecompositionService{submissions: submissions, logger: logger}
}

func (s *DecompositionService) Decompose(ctx context.Context, beliefID uuid.UUID, weights map[uuid.UUID]float64, epoch int64) (*DecompositionResult, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	subs, err := s.submissions.ListByBelief(ctx, beliefID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	beliefs := make([]float64, 0, len(subs))
	metas := make([]float64, 0, len(subs))
	for _, sub := range subs {
		if _, ok := weights[sub.AgentID]; !ok {
			return nil, fmt.Errorf("agent %s: %w", sub.AgentID, ErrMissingWeight)
		}
		beliefs = append(beliefs, ClampProbability(sub.BeliefValue))
		metas = append(metas, ClampProbability(sub.MetaPrediction))
	}

	result := DecomposeBeliefs(beliefs, metas)

	s.logger.Debug("decomposed belief",
		zap.String("belief_id", beliefID.String()),
		zap.Int64("epoch", epoch),
		zap.Float64("aggregate", result.Aggregate),
		zap.Float64("quality", result.Quality))

	return result, nil
}

// DecomposeBeliefs runs the factor model over parallel belief/meta slices.
func DecomposeBeliefs(beliefs, metas []float64) *DecompositionResult {
	n := len(beliefs)
	switch n {
	case 0:
		return &DecompositionResult{Aggregate: 0.5, Quality: 0}
	case 1:
		// A single agent is its own consensus; the model is trivially exact.
		return &DecompositionResult{Aggregate: beliefs[0], Quality: 1}
	}

	w := fitTransition(beliefs, metas)
	prior := transitionPrior(w)
	posterior := statePosterior(beliefs, prior)
	quality := reconstructionQuality(w, beliefs, metas)

	return &DecompositionResult{Aggregate: posterior, Quality: quality}
}

// fitTransition solves W = Y X^T (X X^T + eps*I)^-1 for the 2x2 matrix
// mapping [p, 1-p] to [m, 1-m], with a closed-form 2x2 inverse.
func fitTransition(beliefs, metas []float64) [2][2]float64 {
	var a00, a01, a11 float64
	var b00, b01, b10, b11 float64
	for i := range beliefs {
		p, q := beliefs[i], 1-beliefs[i]
		m, mm := metas[i], 1-metas[i]
		a00 += p * p
		a01 += p * q
		a11 += q * q
		b00 += m * p
		b01 += m * q
		b10 += mm * p
		b11 += mm * q
	}
	a00 += RidgeEpsilon
	a11 += RidgeEpsilon

	det := a00*a11 - a01*a01
	if det == 0 {
		// Ridge term makes this unreachable for finite inputs; identity
		// keeps the caller's fallback path well defined regardless.
		return [2][2]float64{{1, 0}, {0, 1}}
	}
	inv00 := a11 / det
	inv01 := -a01 / det
	inv11 := a00 / det

	return [2][2]float64{
		{b00*inv00 + b01*inv01, b00*inv01 + b01*inv11},
		{b10*inv00 + b11*inv01, b10*inv01 + b11*inv11},
	}
}

// transitionPrior derives the stationary state probability
// p* = c / (1 - a + c) from the fitted matrix, falling back to 0.5 when the
// denominator degenerates.
func transitionPrior(w [2][2]float64) float64 {
	a, c := w[0][0], w[1][0]
	denom := 1 - a + c
	if math.Abs(denom) < RidgeEpsilon {
		return 0.5
	}
	return ClampProbability(c / denom)
}

// statePosterior combines each agent's belief against the shared prior:
// the unnormalized likelihood of state 1 is prod(b_i) / p*^(n-1) and of
// state 0 is prod(1-b_i) / (1-p*)^(n-1). Computed in log space.
func statePosterior(beliefs []float64, prior float64) float64 {
	n := float64(len(beliefs))
	logOne := -(n - 1) * math.Log(prior)
	logZero := -(n - 1) * math.Log(1-prior)
	for _, b := range beliefs {
		logOne += math.Log(b)
		logZero += math.Log(1 - b)
	}
	// posterior = L1 / (L1 + L0) = sigmoid(logL1 - logL0)
	return ClampProbability(1 / (1 + math.Exp(logZero-logOne)))
}

// reconstructionQuality is 1 minus the mean squared residual of the fitted
// matrix reconstructing the meta-prediction distributions, clamped to [0,1].
func reconstructionQuality(w [2][2]float64, beliefs, metas []float64) float64 {
	var sq float64
	for i := range beliefs {
		p, q := beliefs[i], 1-beliefs[i]
		m0 := w[0][0]*p + w[0][1]*q
		m1 := w[1][0]*p + w[1][1]*q
		d0 := m0 - metas[i]
		d1 := m1 - (1 - metas[i])
		sq += (d0*d0 + d1*d1) / 2
	}
	return clampUnit(1 - sq/float64(len(beliefs)))
}
