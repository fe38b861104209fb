package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
)

// RedistributionResult reports the settlement of one (belief, epoch).
type RedistributionResult struct {
	Lambda                 float64              `json:"lambda"`
	IndividualRewards      map[uuid.UUID]int64  `json:"individual_rewards"`
	IndividualSlashes      map[uuid.UUID]int64  `json:"individual_slashes"`
	RedistributionOccurred bool                 `json:"redistribution_occurred"`
	TotalDeltaMicro        int64                `json:"total_delta_micro"`
	Skipped                bool                 `json:"skipped,omitempty"`
	Reason                 string               `json:"reason,omitempty"`
}

// RedistributionService converts information scores into a zero-sum transfer
// of locked stake. Losers are slashed their full |score * gross_lock|;
// winners split exactly the slashed pool, scaled by lambda so rewards never
// exceed losses. The apply step is one atomic transaction with the
// idempotency check, so concurrent retriggering settles at most once.
type RedistributionService struct {
	positions domain.PositionStore
	events    domain.RedistributionStore
	logger    *zap.Logger
}

func NewRedistributionService(positions domain.PositionStore, events domain.RedistributionStore, logger *zap.Logger) *RedistributionService {
	return &RedistributionService{positions: positions, events: events, logger: logger}
}

func (s *RedistributionService) Redistribute(ctx context.Context, beliefID uuid.UUID, epoch int64, scores map[uuid.UUID]float64) (*RedistributionResult, error) {
	if len(scores) == 0 {
		return nil, ErrNoParticipants
	}
	for id, score := range scores {
		if math.IsNaN(score) || score < -1 || score > 1 {
			return nil, fmt.Errorf("agent %s score %v: %w", id, score, ErrProbabilityOutOfRange)
		}
	}

	locks, err := s.positions.GrossLocks(ctx, beliefID)
	if err != nil {
		return nil, fmt.Errorf("load gross locks: %w", err)
	}

	plan := PlanRedistribution(scores, locks)

	if !plan.RedistributionOccurred {
		s.logger.Debug("no redistribution",
			zap.String("belief_id", beliefID.String()),
			zap.Int64("epoch", epoch))
		return plan, nil
	}

	entries := make([]domain.RedistributionEntry, 0, len(plan.IndividualRewards)+len(plan.IndividualSlashes))
	for id, reward := range plan.IndividualRewards {
		entries = append(entries, domain.RedistributionEntry{
			AgentID:          id,
			InformationScore: scores[id],
			StakeDelta:       reward,
			GrossLock:        locks[id],
		})
	}
	for id, slash := range plan.IndividualSlashes {
		entries = append(entries, domain.RedistributionEntry{
			AgentID:          id,
			InformationScore: scores[id],
			StakeDelta:       -slash,
			GrossLock:        locks[id],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AgentID.String() < entries[j].AgentID.String()
	})

	applied, err := s.events.Apply(ctx, beliefID, epoch, entries)
	if err != nil {
		return nil, fmt.Errorf("apply redistribution: %w", err)
	}
	if !applied {
		return &RedistributionResult{
			IndividualRewards: map[uuid.UUID]int64{},
			IndividualSlashes: map[uuid.UUID]int64{},
			Skipped:           true,
			Reason:            "already_redistributed",
		}, nil
	}

	s.logger.Info("redistribution applied",
		zap.String("belief_id", beliefID.String()),
		zap.Int64("epoch", epoch),
		zap.Float64("lambda", plan.Lambda),
		zap.Int("winners", len(plan.IndividualRewards)),
		zap.Int("losers", len(plan.IndividualSlashes)),
		zap.Int64("total_delta_micro", plan.TotalDeltaMicro))

	return plan, nil
}

// PlanRedistribution computes the integer stake deltas without touching
// storage. Agents without a positive gross lock carry no economic exposure
// and are excluded.
func PlanRedistribution(scores map[uuid.UUID]float64, locks map[uuid.UUID]int64) *RedistributionResult {
	result := &RedistributionResult{
		IndividualRewards: make(map[uuid.UUID]int64),
		IndividualSlashes: make(map[uuid.UUID]int64),
	}

	var winners, losers []exposure
	var gains, losses float64
	for id, score := range scores {
		lock := locks[id]
		if lock <= 0 {
			continue
		}
		raw := score * float64(lock)
		switch {
		case raw > 0:
			winners = append(winners, exposure{id, raw})
			gains += raw
		case raw < 0:
			losers = append(losers, exposure{id, -raw})
			losses += -raw
		}
	}

	if len(losers) == 0 {
		return result
	}

	// Losers are always slashed in full; |score| <= 1 bounds the slash by
	// the gross lock.
	var totalSlash int64
	for _, l := range losers {
		slash := int64(math.Round(l.raw))
		if slash == 0 {
			continue
		}
		result.IndividualSlashes[l.id] = slash
		totalSlash += slash
	}
	if totalSlash == 0 {
		result.IndividualSlashes = make(map[uuid.UUID]int64)
		return result
	}

	if gains > 0 {
		result.Lambda = clampUnit(losses / gains)
	}

	if len(winners) > 0 && result.Lambda > 0 {
		if losses <= gains {
			// Scale winners down to the slashed pool and split it exactly,
			// assigning leftover micro-units by largest remainder.
			distributePool(winners, gains, totalSlash, result.IndividualRewards)
		} else {
			// Lambda clamps at 1: winners collect their full raw delta and
			// the unmatched excess of the slashes stays withdrawn.
			for _, w := range winners {
				if reward := int64(math.Round(w.raw)); reward > 0 {
					result.IndividualRewards[w.id] = reward
				}
			}
		}
	}

	var net int64
	for _, r := range result.IndividualRewards {
		net += r
	}
	for _, sl := range result.IndividualSlashes {
		net -= sl
	}
	result.TotalDeltaMicro = net
	result.RedistributionOccurred = true
	return result
}

// exposure is one agent's unrounded economic delta magnitude.
type exposure struct {
	id  uuid.UUID
	raw float64
}

// distributePool splits pool micro-units among winners proportionally to
// their raw deltas, using largest-remainder rounding so the split sums to
// the pool exactly.
func distributePool(winners []exposure, gains float64, pool int64, rewards map[uuid.UUID]int64) {
	type share struct {
		id   uuid.UUID
		base int64
		frac float64
	}
	shares := make([]share, 0, len(winners))
	var assigned int64
	for _, w := range winners {
		ideal := w.raw / gains * float64(pool)
		base := int64(math.Floor(ideal))
		shares = append(shares, share{w.id, base, ideal - float64(base)})
		assigned += base
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].frac != shares[j].frac {
			return shares[i].frac > shares[j].frac
		}
		return shares[i].id.String() < shares[j].id.String()
	})

	remainder := pool - assigned
	for i := range shares {
		if remainder > 0 {
			shares[i].base++
			remainder--
		}
		if shares[i].base > 0 {
			rewards[shares[i].id] = shares[i].base
		}
	}
}
