package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritaslabs/veritas/internal/domain"
)

type SubmissionStore struct {
	db *pgxpool.Pool
}

func NewSubmissionStore(db *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// Upsert writes the agent's current submission for the belief. The
// (belief_id, agent_id) pair is unique; a resubmission replaces the prior
// record and re-marks it active for the submitted epoch.
func (s *SubmissionStore) Upsert(ctx context.Context, sub *domain.Submission) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx,
		`INSERT INTO submissions (belief_id, agent_id, belief_value, meta_prediction, epoch, is_active, stake_allocated)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		 ON CONFLICT (belief_id, agent_id) DO UPDATE SET
		     belief_value = EXCLUDED.belief_value,
		     meta_prediction = EXCLUDED.meta_prediction,
		     epoch = EXCLUDED.epoch,
		     is_active = TRUE,
		     stake_allocated = EXCLUDED.stake_allocated,
		     updated_at = NOW()
		 RETURNING (xmax = 0), created_at, updated_at`,
		sub.BeliefID, sub.AgentID, sub.BeliefValue, sub.MetaPrediction, sub.Epoch, sub.StakeAllocated,
	).Scan(&inserted, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return false, err
	}
	sub.IsActive = true
	return inserted, nil
}

func (s *SubmissionStore) ListByBelief(ctx context.Context, beliefID uuid.UUID) ([]domain.Submission, error) {
	rows, err := s.db.Query(ctx,
		`SELECT belief_id, agent_id, belief_value, meta_prediction, epoch, is_active, stake_allocated, created_at, updated_at
		 FROM submissions WHERE belief_id = $1
		 ORDER BY agent_id`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.BeliefID, &sub.AgentID, &sub.BeliefValue, &sub.MetaPrediction, &sub.Epoch, &sub.IsActive, &sub.StakeAllocated, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SubmissionStore) ListAgentIDs(ctx context.Context, beliefID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT agent_id FROM submissions WHERE belief_id = $1 ORDER BY agent_id`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SubmissionStore) CountActiveAtEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE belief_id = $1 AND epoch = $2 AND is_active`,
		beliefID, epoch,
	).Scan(&count)
	return count, err
}

func (s *SubmissionStore) UpdateBeliefValue(ctx context.Context, beliefID, agentID uuid.UUID, value float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE submissions SET belief_value = $3, updated_at = NOW()
		 WHERE belief_id = $1 AND agent_id = $2`,
		beliefID, agentID, value,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubmissionStore) DeactivateByBelief(ctx context.Context, beliefID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE submissions SET is_active = FALSE, updated_at = NOW()
		 WHERE belief_id = $1 AND is_active`,
		beliefID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
