package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEpochWorkers bounds concurrent per-belief processing. Each
	// belief's settlement is its own transaction, so beliefs are
	// independent units of work.
	DefaultEpochWorkers = 4

	// MinParticipants is the fewest historical participants a belief needs
	// before it is scored.
	MinParticipants = 2
)

// BeliefReport holds the intermediate metrics of one processed belief.
type BeliefReport struct {
	BeliefID             uuid.UUID             `json:"belief_id"`
	Participants         int                   `json:"participants"`
	Aggregate            float64               `json:"aggregate"`
	UsedDecomposition    bool                  `json:"used_decomposition"`
	DecompositionQuality float64               `json:"decomposition_quality"`
	Certainty            float64               `json:"certainty"`
	PostAggregate        float64               `json:"post_aggregate"`
	PostEntropy          float64               `json:"post_disagreement_entropy"`
	LearningOccurred     bool                  `json:"learning_occurred"`
	EconomicLearningRate float64               `json:"economic_learning_rate"`
	Lambda               float64               `json:"lambda"`
	Redistributed        bool                  `json:"redistributed"`
	InformationScores    map[uuid.UUID]float64 `json:"information_scores,omitempty"`
}

// EpochReport summarizes one orchestrator run.
type EpochReport struct {
	ProcessedBeliefs []BeliefReport `json:"processed_beliefs"`
	ExpiredBeliefs   []uuid.UUID    `json:"expired_beliefs"`
	NextEpoch        int64          `json:"next_epoch"`
	Errors           []string       `json:"errors"`
}

// EpochService sequences the full per-belief pipeline once per epoch:
// weights, aggregation (factor decomposition preferred), mirror descent,
// learning assessment, BTS scoring and redistribution. Per-belief failures
// are recorded without aborting the batch, and the global epoch counter only
// advances after every belief has been attempted.
type EpochService struct {
	beliefs     domain.BeliefStore
	submissions domain.SubmissionStore
	epochs      domain.EpochStateStore

	weights        *WeightService
	aggregation    *AggregationService
	decomposition  *DecompositionService
	mirrorDescent  *MirrorDescentService
	learning       *LearningService
	bts            *BTSService
	redistribution *RedistributionService

	logger  *zap.Logger
	workers int
}

func NewEpochService(
	beliefs domain.BeliefStore,
	submissions domain.SubmissionStore,
	epochs domain.EpochStateStore,
	weights *WeightService,
	aggregation *AggregationService,
	decomposition *DecompositionService,
	mirrorDescent *MirrorDescentService,
	learning *LearningService,
	bts *BTSService,
	redistribution *RedistributionService,
	logger *zap.Logger,
) *EpochService {
	return &EpochService{
		beliefs:        beliefs,
		submissions:    submissions,
		epochs:         epochs,
		weights:        weights,
		aggregation:    aggregation,
		decomposition:  decomposition,
		mirrorDescent:  mirrorDescent,
		learning:       learning,
		bts:            bts,
		redistribution: redistribution,
		logger:         logger,
		workers:        DefaultEpochWorkers,
	}
}

func (s *EpochService) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// ProcessEpoch runs one epoch boundary. When epoch is nil the current value
// of the global counter is used. Expired beliefs are deleted with their
// submissions; every remaining belief with enough participation is processed
// independently; the counter advances exactly once at the end.
func (s *EpochService) ProcessEpoch(ctx context.Context, epoch *int64) (*EpochReport, error) {
	current := int64(0)
	if epoch != nil {
		current = *epoch
	} else {
		e, err := s.epochs.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("read current epoch: %w", err)
		}
		current = e
	}

	beliefs, err := s.beliefs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active beliefs: %w", err)
	}

	report := &EpochReport{Errors: []string{}}

	var remaining []domain.Belief
	for _, b := range beliefs {
		if b.Expired(current) {
			if err := s.beliefs.DeleteCascade(ctx, b.ID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("expire belief %s: %v", b.ID, err))
				continue
			}
			report.ExpiredBeliefs = append(report.ExpiredBeliefs, b.ID)
			continue
		}
		remaining = append(remaining, b)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, b := range remaining {
		belief := b
		g.Go(func() error {
			br, err := s.processBelief(gctx, belief, current)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("belief %s: %v", belief.ID, err))
				return nil
			}
			if br != nil {
				report.ProcessedBeliefs = append(report.ProcessedBeliefs, *br)
			}
			return nil
		})
	}
	_ = g.Wait()

	next, err := s.epochs.Advance(ctx)
	if err != nil {
		return nil, fmt.Errorf("advance epoch: %w", err)
	}
	report.NextEpoch = next

	s.logger.Info("epoch processed",
		zap.Int64("epoch", current),
		zap.Int64("next_epoch", next),
		zap.Int("processed", len(report.ProcessedBeliefs)),
		zap.Int("expired", len(report.ExpiredBeliefs)),
		zap.Int("errors", len(report.Errors)))

	return report, nil
}

// processBelief runs the pipeline for one belief. A nil report with nil
// error means the belief was skipped for insufficient participation.
func (s *EpochService) processBelief(ctx context.Context, belief domain.Belief, epoch int64) (*BeliefReport, error) {
	participants, err := s.submissions.ListAgentIDs(ctx, belief.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(participants) < MinParticipants {
		return nil, nil
	}
	activeCount, err := s.submissions.CountActiveAtEpoch(ctx, belief.ID, epoch)
	if err != nil {
		return nil, fmt.Errorf("count active submissions: %w", err)
	}
	if activeCount == 0 {
		return nil, nil
	}

	weights, err := s.weights.CalculateWeights(ctx, belief.ID, participants)
	if err != nil {
		return nil, fmt.Errorf("calculate weights: %w", err)
	}

	agg, err := s.aggregation.Aggregate(ctx, belief.ID, weights.Weights, epoch)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	preAggregate := agg.Aggregate
	usedDecomposition := false
	decomp, err := s.decomposition.Decompose(ctx, belief.ID, weights.Weights, epoch)
	if err != nil {
		s.logger.Warn("decomposition failed, using naive aggregate",
			zap.String("belief_id", belief.ID.String()), zap.Error(err))
	} else if decomp.Quality >= DefaultQualityFloor {
		preAggregate = decomp.Aggregate
		usedDecomposition = true
	}

	mirror, err := s.mirrorDescent.Update(ctx, belief.ID, preAggregate, agg.Certainty, agg.ActiveAgents, weights.Weights)
	if err != nil {
		return nil, fmt.Errorf("mirror descent: %w", err)
	}

	assessment, err := s.learning.Assess(ctx, belief.ID, mirror.PostDisagreementEntropy, mirror.PostAggregate)
	if err != nil {
		return nil, fmt.Errorf("learning assessment: %w", err)
	}

	br := &BeliefReport{
		BeliefID:             belief.ID,
		Participants:         len(participants),
		Aggregate:            preAggregate,
		UsedDecomposition:    usedDecomposition,
		Certainty:            agg.Certainty,
		PostAggregate:        mirror.PostAggregate,
		PostEntropy:          mirror.PostDisagreementEntropy,
		LearningOccurred:     assessment.LearningOccurred,
		EconomicLearningRate: assessment.EconomicLearningRate,
	}
	if decomp != nil {
		br.DecompositionQuality = decomp.Quality
	}

	if !assessment.LearningOccurred {
		return br, nil
	}

	scores, err := s.bts.Score(belief.ID, mirror.UpdatedBeliefs, agg.LeaveOneOutAggregates, agg.LeaveOneOutMetaAggregates, weights.Weights, agg.MetaPredictions)
	if err != nil {
		return nil, fmt.Errorf("bts score: %w", err)
	}
	br.InformationScores = scores.InformationScores

	settlement, err := s.redistribution.Redistribute(ctx, belief.ID, epoch, scores.InformationScores)
	if err != nil {
		return nil, fmt.Errorf("redistribute: %w", err)
	}
	br.Lambda = settlement.Lambda
	br.Redistributed = settlement.RedistributionOccurred

	return br, nil
}
