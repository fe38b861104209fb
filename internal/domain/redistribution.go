package domain

import (
	"time"

	"github.com/google/uuid"
)

// RedistributionEvent is the append-only audit record of one agent's stake
// movement for a (belief, epoch) settlement. Existence of any event for a
// (belief, epoch) pair is the idempotency guard against re-settlement.
type RedistributionEvent struct {
	ID               uuid.UUID `json:"id"`
	BeliefID         uuid.UUID `json:"belief_id"`
	Epoch            int64     `json:"epoch"`
	AgentID          uuid.UUID `json:"agent_id"`
	InformationScore float64   `json:"information_score"`
	StakeDelta       int64     `json:"stake_delta"`
	BeliefWeight     int64     `json:"belief_weight"`
	CreatedAt        time.Time `json:"created_at"`
}

// RedistributionEntry is the computed, not-yet-applied delta for one agent.
type RedistributionEntry struct {
	AgentID          uuid.UUID
	InformationScore float64
	StakeDelta       int64
	GrossLock        int64
}
