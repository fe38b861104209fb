package domain

import (
	"time"

	"github.com/google/uuid"
)

type BeliefStatus string

const (
	BeliefStatusActive  BeliefStatus = "active"
	BeliefStatusExpired BeliefStatus = "expired"
)

// Belief is a tracked binary proposition with a running consensus aggregate.
// PreviousAggregate stays strictly inside (0,1);
// PreviousDisagreementEntropy is the normalized disagreement in [0,1].
// Both are rewritten each epoch by the learning assessment.
type Belief struct {
	ID                          uuid.UUID    `json:"id"`
	TenantID                    uuid.UUID    `json:"tenant_id,omitempty"`
	CreatorAgentID              uuid.UUID    `json:"creator_agent_id"`
	Title                       string       `json:"title"`
	CreatedEpoch                int64        `json:"created_epoch"`
	ExpirationEpoch             int64        `json:"expiration_epoch"`
	PreviousAggregate           float64      `json:"previous_aggregate"`
	PreviousDisagreementEntropy float64      `json:"previous_disagreement_entropy"`
	Status                      BeliefStatus `json:"status"`
	CreatedAt                   time.Time    `json:"created_at"`
	UpdatedAt                   time.Time    `json:"updated_at"`
}

// Expired reports whether the belief should be removed at the given epoch.
func (b *Belief) Expired(epoch int64) bool {
	return b.ExpirationEpoch <= epoch
}
