package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

// WeightSet is the normalized influence of each participant on a belief.
type WeightSet struct {
	Weights         map[uuid.UUID]float64 `json:"weights"`
	EffectiveStakes map[uuid.UUID]float64 `json:"effective_stakes"`
}

// WeightService converts capital stakes into normalized influence weights.
// An agent's stake is diluted across every belief they currently back.
type WeightService struct {
	agents domain.AgentStore
	logger *zap.Logger
}

func NewWeightService(agents domain.AgentStore, logger *zap.Logger) *WeightService {
	return &WeightService{agents: agents, logger: logger}
}

// CalculateWeights returns weights summing to one plus the raw effective
// stakes. If every participant has zero effective stake the weights are
// uniform.
func (s *WeightService) CalculateWeights(ctx context.Context, beliefID uuid.UUID, agentIDs []uuid.UUID) (*WeightSet, error) {
	if len(agentIDs) == 0 {
		return nil, ErrNoParticipants
	}

	agents, err := s.agents.GetByIDs(ctx, agentIDs)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	byID := make(map[uuid.UUID]domain.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	effective := make(map[uuid.UUID]float64, len(agentIDs))
	var total float64
	for _, id := range agentIDs {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("agent %s: %w", id, ErrNoParticipants)
		}
		divisor := math.Max(1, float64(a.ActiveBeliefCount))
		stake := float64(a.TotalStake) / divisor
		effective[id] = stake
		total += stake
	}

	weights := make(map[uuid.UUID]float64, len(agentIDs))
	if total <= 0 {
		uniform := 1.0 / float64(len(agentIDs))
		for _, id := range agentIDs {
			weights[id] = uniform
		}
	} else {
		for _, id := range agentIDs {
			weights[id] = effective[id] / total
		}
	}

	s.logger.Debug("calculated weights",
		zap.String("belief_id", beliefID.String()),
		zap.Int("participants", len(agentIDs)),
		zap.Float64("total_effective_stake", total))

	return &WeightSet{Weights: weights, EffectiveStakes: effective}, nil
}

// ValidateWeights checks that the set is non-empty and sums to one within
// tolerance.
func ValidateWeights(weights map[uuid.UUID]float64) error {
	if len(weights) == 0 {
		return ErrNoParticipants
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("sum %.12f: %w", sum, ErrWeightsNotNormalized)
	}
	return nil
}
