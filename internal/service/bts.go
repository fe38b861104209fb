package service

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BTSResult holds per-agent information scores with the winner/loser
// partition.
type BTSResult struct {
	InformationScores map[uuid.UUID]float64 `json:"information_scores"`
	Winners           []uuid.UUID           `json:"winners"`
	Losers            []uuid.UUID           `json:"losers"`
}

// BTSService assigns information scores Bayesian-Truth-Serum style: each
// agent's stated belief is judged against the leave-one-out aggregate (the
// ex-post consensus of everyone else), shadowed by the leave-one-out
// meta-aggregate (what the population expected that consensus to be). An
// agent scores positively when their belief sits closer to the consensus
// than the population's expectation of it, negatively otherwise.
type BTSService struct {
	logger *zap.Logger
}

func NewBTSService(logger *zap.Logger) *BTSService {
	return &BTSService{logger: logger}
}

func (s *BTSService) Score(beliefID uuid.UUID, postBeliefs, looAggregates, looMetaAggregates, weights, metaPredictions map[uuid.UUID]float64) (*BTSResult, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}
	if len(postBeliefs) == 0 {
		return nil, ErrNoSubmissions
	}

	result := &BTSResult{InformationScores: make(map[uuid.UUID]float64, len(postBeliefs))}
	for id, belief := range postBeliefs {
		if _, ok := weights[id]; !ok {
			return nil, fmt.Errorf("agent %s: %w", id, ErrMissingWeight)
		}
		loo, ok := looAggregates[id]
		if !ok {
			return nil, fmt.Errorf("agent %s missing leave-one-out aggregate: %w", id, ErrMissingWeight)
		}
		looMeta, ok := looMetaAggregates[id]
		if !ok {
			return nil, fmt.Errorf("agent %s missing leave-one-out meta-aggregate: %w", id, ErrMissingWeight)
		}

		score := InformationScore(belief, loo, looMeta)
		result.InformationScores[id] = score
		switch {
		case score > 0:
			result.Winners = append(result.Winners, id)
		case score < 0:
			result.Losers = append(result.Losers, id)
		}
	}

	s.logger.Debug("bts scored",
		zap.String("belief_id", beliefID.String()),
		zap.Int("winners", len(result.Winners)),
		zap.Int("losers", len(result.Losers)))

	return result, nil
}

// InformationScore is the population expectation's distance to the
// counterfactual consensus minus the agent's own distance, clamped to
// [-1, 1]. Positive means the agent out-predicted what the population
// expected of them.
func InformationScore(belief, looAggregate, looMetaAggregate float64) float64 {
	score := math.Abs(looMetaAggregate-looAggregate) - math.Abs(belief-looAggregate)
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
