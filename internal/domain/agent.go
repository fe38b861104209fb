package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a staked participant. TotalStake is held in integer micro-units
// and must never go negative; it is mutated only by the redistribution
// transaction. ActiveBeliefCount tracks how many beliefs the agent currently
// backs and dilutes their effective stake per belief.
type Agent struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id,omitempty"`
	ExternalID        string    `json:"external_id"`
	Name              string    `json:"name"`
	TotalStake        int64     `json:"total_stake"`
	ActiveBeliefCount int       `json:"active_belief_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
