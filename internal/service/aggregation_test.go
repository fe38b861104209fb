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

func TestAggregate_WeightedMean(t *testing.T) {
	beliefID := uuid.New()
	a, b := uuid.New(), uuid.New()

	subs := newMockSubmissionStore()
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0.2, MetaPrediction: 0.5, Epoch: 3, IsActive: true})
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: b, BeliefValue: 0.8, MetaPrediction: 0.5, Epoch: 3, IsActive: true})

	svc := NewAggregationService(subs, zap.NewNop())
	weights := map[uuid.UUID]float64{a: 0.25, b: 0.75}

	result, err := svc.Aggregate(context.Background(), beliefID, weights, 3)
	require.NoError(t, err)

	assert.InDelta(t, 0.65, result.Aggregate, 1e-12)
	// H(0.65) - (0.25*H(0.2) + 0.75*H(0.8))
	assert.InDelta(t, 0.21214, result.DisagreementEntropy, 1e-4)
	assert.InDelta(t, 1-result.NormalizedEntropy, result.Certainty, 1e-12)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, result.ActiveAgents)

	// Leave-one-out renormalizes the remaining weights.
	assert.InDelta(t, 0.8, result.LeaveOneOutAggregates[a], 1e-12)
	assert.InDelta(t, 0.2, result.LeaveOneOutAggregates[b], 1e-12)
	assert.InDelta(t, 0.5, result.LeaveOneOutMetaAggregates[a], 1e-12)
}

func TestAggregate_IdenticalBeliefsHaveZeroDisagreement(t *testing.T) {
	beliefID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	subs := newMockSubmissionStore()
	for _, id := range []uuid.UUID{a, b, c} {
		subs.add(domain.Submission{BeliefID: beliefID, AgentID: id, BeliefValue: 0.7, MetaPrediction: 0.7, Epoch: 0, IsActive: true})
	}

	svc := NewAggregationService(subs, zap.NewNop())
	weights := map[uuid.UUID]float64{a: 0.5, b: 0.3, c: 0.2}

	result, err := svc.Aggregate(context.Background(), beliefID, weights, 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, result.Aggregate, 1e-12)
	assert.InDelta(t, 0, result.DisagreementEntropy, 1e-12)
	assert.InDelta(t, 1, result.Certainty, 1e-12)
}

func TestAggregate_SingleParticipant(t *testing.T) {
	beliefID := uuid.New()
	a := uuid.New()

	subs := newMockSubmissionStore()
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0.9, MetaPrediction: 0.6, Epoch: 0, IsActive: true})

	svc := NewAggregationService(subs, zap.NewNop())

	result, err := svc.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 1}, 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.9, result.Aggregate, 1e-9)
	// Degenerate counterfactual: excluding the only agent returns their own
	// values.
	assert.InDelta(t, 0.9, result.LeaveOneOutAggregates[a], 1e-9)
	assert.InDelta(t, 0.6, result.LeaveOneOutMetaAggregates[a], 1e-9)
}

func TestAggregate_PassiveSubmissionsStillAggregate(t *testing.T) {
	beliefID := uuid.New()
	a, b := uuid.New(), uuid.New()

	subs := newMockSubmissionStore()
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0.4, MetaPrediction: 0.5, Epoch: 7, IsActive: true})
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: b, BeliefValue: 0.6, MetaPrediction: 0.5, Epoch: 2, IsActive: false})

	svc := NewAggregationService(subs, zap.NewNop())

	result, err := svc.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 0.5, b: 0.5}, 7)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.Aggregate, 1e-12)
	assert.Equal(t, []uuid.UUID{a}, result.ActiveAgents)
}

func TestAggregate_Errors(t *testing.T) {
	beliefID := uuid.New()
	a, b := uuid.New(), uuid.New()
	svc := NewAggregationService(newMockSubmissionStore(), zap.NewNop())

	t.Run("unnormalized weights", func(t *testing.T) {
		_, err := svc.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 0.9}, 0)
		assert.ErrorIs(t, err, ErrWeightsNotNormalized)
	})

	t.Run("no submissions", func(t *testing.T) {
		_, err := svc.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 1}, 0)
		assert.ErrorIs(t, err, ErrNoSubmissions)
	})

	t.Run("submission without weight", func(t *testing.T) {
		subs := newMockSubmissionStore()
		subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0.5, MetaPrediction: 0.5})
		subs.add(domain.Submission{BeliefID: beliefID, AgentID: b, BeliefValue: 0.5, MetaPrediction: 0.5})
		s := NewAggregationService(subs, zap.NewNop())
		_, err := s.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 1}, 0)
		assert.ErrorIs(t, err, ErrMissingWeight)
	})

	t.Run("weight without submission", func(t *testing.T) {
		subs := newMockSubmissionStore()
		subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0.5, MetaPrediction: 0.5})
		s := NewAggregationService(subs, zap.NewNop())
		_, err := s.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 0.5, b: 0.5}, 0)
		assert.ErrorIs(t, err, ErrMissingWeight)
	})
}

func TestAggregate_ExtremeValuesAreClamped(t *testing.T) {
	beliefID := uuid.New()
	a, b := uuid.New(), uuid.New()

	subs := newMockSubmissionStore()
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: a, BeliefValue: 0, MetaPrediction: 0, Epoch: 0, IsActive: true})
	subs.add(domain.Submission{BeliefID: beliefID, AgentID: b, BeliefValue: 1, MetaPrediction: 1, Epoch: 0, IsActive: true})

	svc := NewAggregationService(subs, zap.NewNop())

	result, err := svc.Aggregate(context.Background(), beliefID, map[uuid.UUID]float64{a: 0.5, b: 0.5}, 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.Aggregate, 1e-9)
	// Maximal disagreement: mixture entropy 1, individual entropies ~0.
	assert.InDelta(t, 1, result.NormalizedEntropy, 1e-6)
	assert.InDelta(t, 0, result.Certainty, 1e-6)
	assert.Greater(t, result.Beliefs[a], 0.0)
	assert.Less(t, result.Beliefs[b], 1.0)
}
