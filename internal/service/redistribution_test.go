package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPlanRedistribution_ZeroSumWhenLossesCoverGains(t *testing.T) {
	winner, loser := uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{winner: 1.0, loser: -0.5}
	locks := map[uuid.UUID]int64{winner: 1_000_000, loser: 1_000_000}

	plan := PlanRedistribution(scores, locks)

	require.True(t, plan.RedistributionOccurred)
	// gains = 1_000_000, losses = 500_000 -> lambda scales rewards to the pool
	assert.InDelta(t, 0.5, plan.Lambda, 1e-12)
	assert.EqualValues(t, 500_000, plan.IndividualSlashes[loser])
	assert.EqualValues(t, 500_000, plan.IndividualRewards[winner])
	assert.EqualValues(t, 0, plan.TotalDeltaMicro)
}

func TestPlanRedistribution_LambdaClampBurnsExcess(t *testing.T) {
	winner, loser := uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{winner: 0.25, loser: -1.0}
	locks := map[uuid.UUID]int64{winner: 1_000_000, loser: 1_000_000}

	plan := PlanRedistribution(scores, locks)

	require.True(t, plan.RedistributionOccurred)
	assert.InDelta(t, 1.0, plan.Lambda, 1e-12)
	assert.EqualValues(t, 1_000_000, plan.IndividualSlashes[loser])
	assert.EqualValues(t, 250_000, plan.IndividualRewards[winner])
	// Unmatched slash stays withdrawn.
	assert.EqualValues(t, -750_000, plan.TotalDeltaMicro)
}

func TestPlanRedistribution_MaxScoreSlashesFullLock(t *testing.T) {
	winner, loser := uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{winner: 1.0, loser: -1.0}
	locks := map[uuid.UUID]int64{winner: 2_500_000, loser: 2_500_000}

	plan := PlanRedistribution(scores, locks)

	require.True(t, plan.RedistributionOccurred)
	assert.EqualValues(t, 2_500_000, plan.IndividualSlashes[loser])
	assert.EqualValues(t, 2_500_000, plan.IndividualRewards[winner])
	assert.EqualValues(t, 0, plan.TotalDeltaMicro)
}

func TestPlanRedistribution_NoLosersIsNoOp(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{a: 0.5, b: 0.2}
	locks := map[uuid.UUID]int64{a: 1_000_000, b: 1_000_000}

	plan := PlanRedistribution(scores, locks)

	assert.False(t, plan.RedistributionOccurred)
	assert.Empty(t, plan.IndividualRewards)
	assert.Empty(t, plan.IndividualSlashes)
}

func TestPlanRedistribution_AgentsWithoutLocksCarryNoExposure(t *testing.T) {
	staked, unstaked := uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{staked: 0.5, unstaked: -1.0}
	locks := map[uuid.UUID]int64{staked: 1_000_000}

	plan := PlanRedistribution(scores, locks)

	// The only loser has no lock, so nothing can be slashed.
	assert.False(t, plan.RedistributionOccurred)
}

func TestPlanRedistribution_PoolSplitsExactly(t *testing.T) {
	w1, w2, w3, loser := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	scores := map[uuid.UUID]float64{w1: 1.0, w2: 1.0, w3: 1.0, loser: -1.0}
	locks := map[uuid.UUID]int64{w1: 100, w2: 100, w3: 100, loser: 100}

	plan := PlanRedistribution(scores, locks)

	require.True(t, plan.RedistributionOccurred)
	// 100 micro-units split three ways: largest-remainder keeps the sum exact.
	var total int64
	for _, r := range plan.IndividualRewards {
		total += r
	}
	assert.EqualValues(t, 100, total)
	assert.EqualValues(t, 0, plan.TotalDeltaMicro)
	for _, r := range plan.IndividualRewards {
		assert.True(t, r == 33 || r == 34)
	}
}

func TestRedistribute_AppliesOnceThenSkips(t *testing.T) {
	beliefID := uuid.New()
	winner, loser := uuid.New(), uuid.New()

	positions := newMockPositionStore()
	positions.lock(beliefID, winner, 1_000_000)
	positions.lock(beliefID, loser, 1_000_000)
	events := newMockRedistributionStore()

	svc := NewRedistributionService(positions, events, zap.NewNop())
	scores := map[uuid.UUID]float64{winner: 0.5, loser: -0.5}

	first, err := svc.Redistribute(context.Background(), beliefID, 4, scores)
	require.NoError(t, err)
	assert.True(t, first.RedistributionOccurred)
	assert.False(t, first.Skipped)
	assert.EqualValues(t, 500_000, first.IndividualSlashes[loser])
	assert.EqualValues(t, 500_000, first.IndividualRewards[winner])

	second, err := svc.Redistribute(context.Background(), beliefID, 4, scores)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, "already_redistributed", second.Reason)
	assert.Empty(t, second.IndividualRewards)
	assert.Empty(t, second.IndividualSlashes)

	// A later epoch settles independently.
	third, err := svc.Redistribute(context.Background(), beliefID, 5, scores)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.True(t, third.RedistributionOccurred)
}

func TestRedistribute_RecordsAuditEvents(t *testing.T) {
	beliefID := uuid.New()
	winner, loser := uuid.New(), uuid.New()

	positions := newMockPositionStore()
	positions.lock(beliefID, winner, 2_000_000)
	positions.lock(beliefID, loser, 2_000_000)
	events := newMockRedistributionStore()

	svc := NewRedistributionService(positions, events, zap.NewNop())

	_, err := svc.Redistribute(context.Background(), beliefID, 1, map[uuid.UUID]float64{winner: 1, loser: -1})
	require.NoError(t, err)

	recorded, err := events.ListByBeliefEpoch(context.Background(), beliefID, 1)
	require.NoError(t, err)
	require.Len(t, recorded, 2)

	var net int64
	for _, e := range recorded {
		net += e.StakeDelta
		assert.EqualValues(t, 2_000_000, e.BeliefWeight)
	}
	assert.EqualValues(t, 0, net)
}

func TestRedistribute_Validation(t *testing.T) {
	svc := NewRedistributionService(newMockPositionStore(), newMockRedistributionStore(), zap.NewNop())

	_, err := svc.Redistribute(context.Background(), uuid.New(), 0, nil)
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = svc.Redistribute(context.Background(), uuid.New(), 0, map[uuid.UUID]float64{uuid.New(): 1.5})
	assert.ErrorIs(t, err, ErrProbabilityOutOfRange)
}
