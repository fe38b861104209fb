package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission is one agent's current stance on a belief: a stated probability
// plus a meta-prediction of what the population average will be. Exactly one
// record per (belief, agent) is current. IsActive is true only for the epoch
// the submission was (re)entered in; the learning assessment flips it back to
// false so every agent starts the next epoch passive.
type Submission struct {
	BeliefID       uuid.UUID `json:"belief_id"`
	AgentID        uuid.UUID `json:"agent_id"`
	BeliefValue    float64   `json:"belief_value"`
	MetaPrediction float64   `json:"meta_prediction"`
	Epoch          int64     `json:"epoch"`
	IsActive       bool      `json:"is_active"`
	StakeAllocated int64     `json:"stake_allocated"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
