package domain

import (
	"context"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Agent, error)
	GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (*Agent, error)
	// GetByIDs loads agents without tenant scoping; used by the epoch
	// pipeline which operates across the whole participant set.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Agent, error)
	IncrementActiveBeliefs(ctx context.Context, id uuid.UUID, delta int) error
}

type BeliefStore interface {
	Create(ctx context.Context, b *Belief) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Belief, error)
	Get(ctx context.Context, id uuid.UUID) (*Belief, error)
	ListActive(ctx context.Context) ([]Belief, error)
	// UpdateAggregates overwrites the running consensus state after an
	// epoch's learning assessment.
	UpdateAggregates(ctx context.Context, id uuid.UUID, aggregate, disagreementEntropy float64) error
	// DeleteCascade removes the belief with its submissions and positions
	// and decrements each participant's active belief count.
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

type SubmissionStore interface {
	// Upsert writes the current submission for (belief, agent), replacing
	// any prior record. Returns true when this is the agent's first
	// submission on the belief.
	Upsert(ctx context.Context, s *Submission) (bool, error)
	ListByBelief(ctx context.Context, beliefID uuid.UUID) ([]Submission, error)
	ListAgentIDs(ctx context.Context, beliefID uuid.UUID) ([]uuid.UUID, error)
	CountActiveAtEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) (int, error)
	UpdateBeliefValue(ctx context.Context, beliefID, agentID uuid.UUID, value float64) error
	// DeactivateByBelief flips every submission on the belief to passive.
	DeactivateByBelief(ctx context.Context, beliefID uuid.UUID) (int64, error)
}

type PositionStore interface {
	Create(ctx context.Context, p *Position) error
	// GrossLocks returns, per agent, the summed locked amount across all of
	// that agent's non-zero positions on the belief, regardless of side.
	GrossLocks(ctx context.Context, beliefID uuid.UUID) (map[uuid.UUID]int64, error)
}

type RedistributionStore interface {
	// Apply performs the settlement as one atomic unit: if any event already
	// exists for (belief, epoch) it returns false and mutates nothing;
	// otherwise it applies every stake delta and writes one event per entry.
	Apply(ctx context.Context, beliefID uuid.UUID, epoch int64, entries []RedistributionEntry) (bool, error)
	ListByBeliefEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) ([]RedistributionEvent, error)
}

type EpochStateStore interface {
	Current(ctx context.Context) (int64, error)
	// Advance increments the global epoch counter and returns the new value.
	Advance(ctx context.Context) (int64, error)
}
