package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

// MirrorDescentResult is the updated belief set with post-update metrics.
type MirrorDescentResult struct {
	UpdatedBeliefs          map[uuid.UUID]float64 `json:"updated_beliefs"`
	PostAggregate           float64               `json:"post_aggregate"`
	PostDisagreementEntropy float64               `json:"post_disagreement_entropy"`
}

// MirrorDescentService nudges passive agents' stored beliefs toward the
// consensus. Agents that submitted this epoch keep their beliefs fixed;
// everyone else moves by the certainty-derived learning rate.
type MirrorDescentService struct {
	submissions domain.SubmissionStore
	logger      *zap.Logger
}

func NewMirrorDescentService(submissions domain.SubmissionStore, logger *zap.Logger) *MirrorDescentService {
	return &MirrorDescentService{submissions: submissions, logger: logger}
}

// Update applies new = (1-lambda)*old + lambda*aggregate to every passive
// agent, persists the moved beliefs, and recomputes the aggregate and
// disagreement entropy over the updated set with the same formulas the
// aggregation stage uses.
func (s *MirrorDescentService) Update(ctx context.Context, beliefID uuid.UUID, preAggregate, certainty float64, activeAgents []uuid.UUID, weights map[uuid.UUID]float64) (*MirrorDescentResult, error) {
	if !validUnit(preAggregate) {
		return nil, fmt.Errorf("pre-aggregate %v: %w", preAggregate, ErrProbabilityOutOfRange)
	}
	if !validUnit(certainty) {
		return nil, fmt.Errorf("certainty %v: %w", certainty, ErrProbabilityOutOfRange)
	}
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	subs, err := s.submissions.ListByBelief(ctx, beliefID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNoSubmissions
	}

	activeSet := make(map[uuid.UUID]bool, len(activeAgents))
	for _, id := range activeAgents {
		activeSet[id] = true
	}

	lambda := certainty
	updated := make(map[uuid.UUID]float64, len(subs))
	moved := 0
	for _, sub := range subs {
		if _, ok := weights[sub.AgentID]; !ok {
			return nil, fmt.Errorf("agent %s: %w", sub.AgentID, ErrMissingWeight)
		}
		old := ClampProbability(sub.BeliefValue)
		if activeSet[sub.AgentID] {
			updated[sub.AgentID] = old
			continue
		}
		next := ClampProbability((1-lambda)*old + lambda*preAggregate)
		updated[sub.AgentID] = next
		if next != old {
			if err := s.submissions.UpdateBeliefValue(ctx, beliefID, sub.AgentID, next); err != nil {
				return nil, fmt.Errorf("persist updated belief for agent %s: %w", sub.AgentID, err)
			}
			moved++
		}
	}

	post := AggregateBeliefs(weights, updated)

	s.logger.Debug("mirror descent applied",
		zap.String("belief_id", beliefID.String()),
		zap.Float64("learning_rate", lambda),
		zap.Int("passive_moved", moved),
		zap.Float64("post_aggregate", post.Aggregate),
		zap.Float64("post_entropy", post.NormalizedEntropy))

	return &MirrorDescentResult{
		UpdatedBeliefs:          updated,
		PostAggregate:           post.Aggregate,
		PostDisagreementEntropy: post.NormalizedEntropy,
	}, nil
}
