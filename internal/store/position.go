package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritaslabs/veritas/internal/domain"
)

type PositionStore struct {
	db *pgxpool.Pool
}

func NewPositionStore(db *pgxpool.Pool) *PositionStore {
	return &PositionStore{db: db}
}

func (s *PositionStore) Create(ctx context.Context, p *domain.Position) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO positions (agent_id, belief_id, side, locked_amount)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.AgentID, p.BeliefID, p.Side, p.LockedAmount,
	).Scan(&p.ID, &p.CreatedAt)
}

// GrossLocks sums locked amounts per agent across all non-zero positions on
// the belief, regardless of side.
func (s *PositionStore) GrossLocks(ctx context.Context, beliefID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT agent_id, SUM(locked_amount)
		 FROM positions
		 WHERE belief_id = $1 AND locked_amount > 0
		 GROUP BY agent_id`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locks := make(map[uuid.UUID]int64)
	for rows.Next() {
		var agentID uuid.UUID
		var total int64
		if err := rows.Scan(&agentID, &total); err != nil {
			return nil, err
		}
		locks[agentID] = total
	}
	return locks, rows.Err()
}
