package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

// AggregateResult carries the consensus and the per-agent counterfactuals
// the downstream scorer needs.
type AggregateResult struct {
	Aggregate                 float64               `json:"aggregate"`
	DisagreementEntropy       float64               `json:"jensen_shannon_disagreement_entropy"`
	NormalizedEntropy         float64               `json:"normalized_disagreement_entropy"`
	Certainty                 float64               `json:"certainty"`
	LeaveOneOutAggregates     map[uuid.UUID]float64 `json:"leave_one_out_aggregates"`
	LeaveOneOutMetaAggregates map[uuid.UUID]float64 `json:"leave_one_out_meta_aggregates"`
	MetaPredictions           map[uuid.UUID]float64 `json:"agent_meta_predictions"`
	Beliefs                   map[uuid.UUID]float64 `json:"agent_beliefs"`
	ActiveAgents              []uuid.UUID           `json:"active_agent_indicators"`
}

// AggregationService computes the weighted consensus probability, the
// disagreement entropy of the population, and leave-one-out counterfactual
// aggregates per agent.
type AggregationService struct {
	submissions domain.SubmissionStore
	logger      *zap.Logger
}

func NewAggregationService(submissions domain.SubmissionStore, logger *zap.Logger) *AggregationService {
	return &AggregationService{submissions: submissions, logger: logger}
}

func (s *AggregationService) Aggregate(ctx context.Context, beliefID uuid.UUID, weights map[uuid.UUID]float64, epoch int64) (*AggregateResult, error) {
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

	beliefs := make(map[uuid.UUID]float64, len(subs))
	metas := make(map[uuid.UUID]float64, len(subs))
	var active []uuid.UUID
	for _, sub := range subs {
		if _, ok := weights[sub.AgentID]; !ok {
			return nil, fmt.Errorf("agent %s: %w", sub.AgentID, ErrMissingWeight)
		}
		beliefs[sub.AgentID] = ClampProbability(sub.BeliefValue)
		metas[sub.AgentID] = ClampProbability(sub.MetaPrediction)
		if sub.IsActive && sub.Epoch == epoch {
			active = append(active, sub.AgentID)
		}
	}
	for id := range weights {
		if _, ok := beliefs[id]; !ok {
			return nil, fmt.Errorf("agent %s has a weight but no submission: %w", id, ErrMissingWeight)
		}
	}

	result := AggregateBeliefs(weights, beliefs)
	result.MetaPredictions = metas
	result.ActiveAgents = active
	result.LeaveOneOutAggregates = leaveOneOut(weights, beliefs)
	result.LeaveOneOutMetaAggregates = leaveOneOut(weights, metas)

	s.logger.Debug("aggregated belief",
		zap.String("belief_id", beliefID.String()),
		zap.Int64("epoch", epoch),
		zap.Float64("aggregate", result.Aggregate),
		zap.Float64("disagreement_entropy", result.NormalizedEntropy),
		zap.Int("active_agents", len(active)))

	return result, nil
}

// AggregateBeliefs computes the weighted aggregate and disagreement metrics
// over an already-clamped belief map. Exposed so the mirror-descent stage can
// recompute post-update metrics with identical formulas.
func AggregateBeliefs(weights map[uuid.UUID]float64, beliefs map[uuid.UUID]float64) *AggregateResult {
	var aggregate float64
	var weightedEntropy float64
	for id, b := range beliefs {
		w := weights[id]
		aggregate += w * ClampProbability(b)
		weightedEntropy += w * BinaryEntropy(b)
	}

	// Jensen-Shannon-style disagreement: entropy of the mixture minus the
	// mixture of entropies, floored at 0 and capped at 1.
	disagreement := BinaryEntropy(aggregate) - weightedEntropy
	if disagreement < 0 {
		disagreement = 0
	}
	normalized := disagreement
	if normalized > 1 {
		normalized = 1
	}

	return &AggregateResult{
		Aggregate:           aggregate,
		DisagreementEntropy: disagreement,
		NormalizedEntropy:   normalized,
		Certainty:           1 - normalized,
		Beliefs:             beliefs,
	}
}

// leaveOneOut recomputes the weighted average excluding each agent in turn,
// with the remaining weights renormalized to sum to one. A lone agent gets
// their own value as the degenerate counterfactual.
func leaveOneOut(weights map[uuid.UUID]float64, values map[uuid.UUID]float64) map[uuid.UUID]float64 {
	out := make(map[uuid.UUID]float64, len(values))
	for excluded := range values {
		rest := 1 - weights[excluded]
		if rest <= WeightSumTolerance {
			out[excluded] = values[excluded]
			continue
		}
		var agg float64
		for id, v := range values {
			if id == excluded {
				continue
			}
			agg += (weights[id] / rest) * v
		}
		out[excluded] = agg
	}
	return out
}
