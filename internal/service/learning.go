package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

// LearningEpsilon is the entropy floor below which no learning can be
// detected.
const LearningEpsilon = 1e-10

// LearningResult reports whether the epoch produced genuine learning.
type LearningResult struct {
	LearningOccurred     bool    `json:"learning_occurred"`
	EntropyReduction     float64 `json:"disagreement_entropy_reduction"`
	EconomicLearningRate float64 `json:"economic_learning_rate"`
}

// LearningService compares disagreement entropy before and after the mirror
// descent update. Its side effects run regardless of the outcome: every
// submission is flipped passive and the belief's stored aggregate/entropy
// are overwritten, so every agent starts the next epoch passive until they
// resubmit.
type LearningService struct {
	beliefs     domain.BeliefStore
	submissions domain.SubmissionStore
	logger      *zap.Logger
}

func NewLearningService(beliefs domain.BeliefStore, submissions domain.SubmissionStore, logger *zap.Logger) *LearningService {
	return &LearningService{beliefs: beliefs, submissions: submissions, logger: logger}
}

func (s *LearningService) Assess(ctx context.Context, beliefID uuid.UUID, postEntropy, postAggregate float64) (*LearningResult, error) {
	if !validUnit(postEntropy) {
		return nil, fmt.Errorf("post entropy %v: %w", postEntropy, ErrProbabilityOutOfRange)
	}
	if !validUnit(postAggregate) {
		return nil, fmt.Errorf("post aggregate %v: %w", postAggregate, ErrProbabilityOutOfRange)
	}

	belief, err := s.beliefs.Get(ctx, beliefID)
	if err != nil {
		return nil, fmt.Errorf("load belief: %w", err)
	}

	previous := belief.PreviousDisagreementEntropy
	reduction := previous - postEntropy
	if reduction < 0 {
		reduction = 0
	}

	result := &LearningResult{
		LearningOccurred: reduction > LearningEpsilon && previous > LearningEpsilon,
		EntropyReduction: reduction,
	}
	if previous > LearningEpsilon {
		result.EconomicLearningRate = clampUnit(reduction / previous)
	}

	deactivated, err := s.submissions.DeactivateByBelief(ctx, beliefID)
	if err != nil {
		return nil, fmt.Errorf("deactivate submissions: %w", err)
	}
	if err := s.beliefs.UpdateAggregates(ctx, beliefID, ClampProbability(postAggregate), postEntropy); err != nil {
		return nil, fmt.Errorf("store post-update state: %w", err)
	}

	s.logger.Debug("learning assessed",
		zap.String("belief_id", beliefID.String()),
		zap.Bool("learning_occurred", result.LearningOccurred),
		zap.Float64("entropy_reduction", reduction),
		zap.Float64("economic_learning_rate", result.EconomicLearningRate),
		zap.Int64("deactivated_submissions", deactivated))

	return result, nil
}
