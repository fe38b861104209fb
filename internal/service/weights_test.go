package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

func TestCalculateWeights_ProportionalToEffectiveStake(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	agents := newMockAgentStore(
		domain.Agent{ID: a, TotalStake: 100_000_000, ActiveBeliefCount: 1},
		domain.Agent{ID: b, TotalStake: 100_000_000, ActiveBeliefCount: 4},
	)
	svc := NewWeightService(agents, zap.NewNop())

	set, err := svc.CalculateWeights(context.Background(), uuid.New(), []uuid.UUID{a, b})
	require.NoError(t, err)

	// b's stake is diluted across four beliefs: 100M vs 25M effective.
	assert.InDelta(t, 0.8, set.Weights[a], 1e-12)
	assert.InDelta(t, 0.2, set.Weights[b], 1e-12)
	assert.InDelta(t, 100_000_000, set.EffectiveStakes[a], 1e-6)
	assert.InDelta(t, 25_000_000, set.EffectiveStakes[b], 1e-6)
	assert.NoError(t, ValidateWeights(set.Weights))
}

func TestCalculateWeights_ZeroStakeFallsBackToUniform(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	agents := newMockAgentStore(
		domain.Agent{ID: ids[0]},
		domain.Agent{ID: ids[1]},
		domain.Agent{ID: ids[2]},
	)
	svc := NewWeightService(agents, zap.NewNop())

	set, err := svc.CalculateWeights(context.Background(), uuid.New(), ids)
	require.NoError(t, err)

	for _, id := range ids {
		assert.InDelta(t, 1.0/3.0, set.Weights[id], 1e-12)
	}
	assert.NoError(t, ValidateWeights(set.Weights))
}

func TestCalculateWeights_ZeroActiveBeliefCountDividesByOne(t *testing.T) {
	a := uuid.New()
	agents := newMockAgentStore(domain.Agent{ID: a, TotalStake: 50_000_000, ActiveBeliefCount: 0})
	svc := NewWeightService(agents, zap.NewNop())

	set, err := svc.CalculateWeights(context.Background(), uuid.New(), []uuid.UUID{a})
	require.NoError(t, err)
	assert.InDelta(t, 50_000_000, set.EffectiveStakes[a], 1e-6)
	assert.InDelta(t, 1.0, set.Weights[a], 1e-12)
}

func TestCalculateWeights_EmptyParticipants(t *testing.T) {
	svc := NewWeightService(newMockAgentStore(), zap.NewNop())
	_, err := svc.CalculateWeights(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestCalculateWeights_UnknownAgent(t *testing.T) {
	svc := NewWeightService(newMockAgentStore(), zap.NewNop())
	_, err := svc.CalculateWeights(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestValidateWeights(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.ErrorIs(t, ValidateWeights(nil), ErrNoParticipants)
	assert.NoError(t, ValidateWeights(map[uuid.UUID]float64{a: 0.25, b: 0.75}))
	assert.ErrorIs(t, ValidateWeights(map[uuid.UUID]float64{a: 0.25, b: 0.5}), ErrWeightsNotNormalized)
	assert.ErrorIs(t, ValidateWeights(map[uuid.UUID]float64{a: 0.75, b: 0.75}), ErrWeightsNotNormalized)
}
