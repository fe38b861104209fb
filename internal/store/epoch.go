package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EpochStateStore holds the single global epoch counter. The counter is read
// once at the start of an orchestrator run and advanced once at the end;
// every stage takes the epoch as an explicit parameter instead of reading
// ambient state.
type EpochStateStore struct {
	db *pgxpool.Pool
}

func NewEpochStateStore(db *pgxpool.Pool) *EpochStateStore {
	return &EpochStateStore{db: db}
}

func (s *EpochStateStore) Current(ctx context.Context) (int64, error) {
	var epoch int64
	err := s.db.QueryRow(ctx,
		`SELECT current_epoch FROM protocol_state WHERE id = 1`,
	).Scan(&epoch)
	return epoch, err
}

func (s *EpochStateStore) Advance(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRow(ctx,
		`UPDATE protocol_state SET current_epoch = current_epoch + 1, updated_at = NOW()
		 WHERE id = 1
		 RETURNING current_epoch`,
	).Scan(&next)
	return next, err
}
