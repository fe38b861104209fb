package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritaslabs/veritas/internal/domain"
)

type RedistributionStore struct {
	db *pgxpool.Pool
}

func NewRedistributionStore(db *pgxpool.Pool) *RedistributionStore {
	return &RedistributionStore{db: db}
}

// Apply settles one (belief, epoch) in a single transaction: it takes a row
// lock on the belief, checks the idempotency guard inside that lock, then
// applies every stake delta and writes the audit events. Concurrent
// re-invocations serialize on the belief row, so the second caller observes
// the events written by the first and backs off without mutating anything.
func (s *RedistributionStore) Apply(ctx context.Context, beliefID uuid.UUID, epoch int64, entries []domain.RedistributionEntry) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin redistribution: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT id FROM beliefs WHERE id = $1 FOR UPDATE`, beliefID,
	).Scan(&locked); err != nil {
		return false, fmt.Errorf("lock belief: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM redistribution_events WHERE belief_id = $1 AND epoch = $2)`,
		beliefID, epoch,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check redistribution events: %w", err)
	}
	if exists {
		return false, nil
	}

	for _, e := range entries {
		if e.StakeDelta != 0 {
			tag, err := tx.Exec(ctx,
				`UPDATE agents
				 SET total_stake = GREATEST(0, total_stake + $2), updated_at = NOW()
				 WHERE id = $1`,
				e.AgentID, e.StakeDelta,
			)
			if err != nil {
				return false, fmt.Errorf("apply stake delta for agent %s: %w", e.AgentID, err)
			}
			if tag.RowsAffected() == 0 {
				return false, fmt.Errorf("apply stake delta for agent %s: %w", e.AgentID, ErrNotFound)
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO redistribution_events (belief_id, epoch, agent_id, information_score, stake_delta, belief_weight)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			beliefID, epoch, e.AgentID, e.InformationScore, e.StakeDelta, e.GrossLock,
		); err != nil {
			return false, fmt.Errorf("record redistribution event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit redistribution: %w", err)
	}
	return true, nil
}

func (s *RedistributionStore) ListByBeliefEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) ([]domain.RedistributionEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, belief_id, epoch, agent_id, information_score, stake_delta, belief_weight, created_at
		 FROM redistribution_events
		 WHERE belief_id = $1 AND epoch = $2
		 ORDER BY created_at, agent_id`,
		beliefID, epoch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.RedistributionEvent
	for rows.Next() {
		var e domain.RedistributionEvent
		if err := rows.Scan(&e.ID, &e.BeliefID, &e.Epoch, &e.AgentID, &e.InformationScore, &e.StakeDelta, &e.BeliefWeight, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
