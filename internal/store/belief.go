package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritaslabs/veritas/internal/domain"
)

type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *pgxpool.Pool) *BeliefStore {
	return &BeliefStore{db: db}
}

const beliefColumns = `id, tenant_id, creator_agent_id, title, created_epoch, expiration_epoch,
	 previous_aggregate, previous_disagreement_entropy, status, created_at, updated_at`

func scanBelief(row pgx.Row, b *domain.Belief) error {
	return row.Scan(&b.ID, &b.TenantID, &b.CreatorAgentID, &b.Title, &b.CreatedEpoch, &b.ExpirationEpoch,
		&b.PreviousAggregate, &b.PreviousDisagreementEntropy, &b.Status, &b.CreatedAt, &b.UpdatedAt)
}

func (s *BeliefStore) Create(ctx context.Context, b *domain.Belief) error {
	if b.Status == "" {
		b.Status = domain.BeliefStatusActive
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO beliefs (tenant_id, creator_agent_id, title, created_epoch, expiration_epoch,
		                      previous_aggregate, previous_disagreement_entropy, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		b.TenantID, b.CreatorAgentID, b.Title, b.CreatedEpoch, b.ExpirationEpoch,
		b.PreviousAggregate, b.PreviousDisagreementEntropy, b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (s *BeliefStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	), b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BeliefStore) Get(ctx context.Context, id uuid.UUID) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = $1`,
		id,
	), b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BeliefStore) ListActive(ctx context.Context) ([]domain.Belief, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE status = $1 ORDER BY created_at`,
		domain.BeliefStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beliefs []domain.Belief
	for rows.Next() {
		var b domain.Belief
		if err := scanBelief(rows, &b); err != nil {
			return nil, err
		}
		beliefs = append(beliefs, b)
	}
	return beliefs, rows.Err()
}

func (s *BeliefStore) UpdateAggregates(ctx context.Context, id uuid.UUID, aggregate, disagreementEntropy float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE beliefs
		 SET previous_aggregate = $2,
		     previous_disagreement_entropy = $3,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, aggregate, disagreementEntropy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes the belief together with its submissions and
// positions, and releases each participant's active-belief slot. Runs as a
// single transaction so a half-deleted belief can never be observed.
func (s *BeliefStore) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete cascade: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE agents SET active_belief_count = GREATEST(0, active_belief_count - 1), updated_at = NOW()
		 WHERE id IN (SELECT agent_id FROM submissions WHERE belief_id = $1)`,
		id,
	); err != nil {
		return fmt.Errorf("release belief slots: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM submissions WHERE belief_id = $1`, id); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE belief_id = $1`, id); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM beliefs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete belief: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}
