package domain

import (
	"time"

	"github.com/google/uuid"
)

type PositionSide string

const (
	PositionSideYes PositionSide = "yes"
	PositionSideNo  PositionSide = "no"
)

// Position is a locked stake parcel an agent holds against a belief.
// An agent's gross lock for a belief is the sum of their non-zero positions
// regardless of side; zero-size positions are excluded.
type Position struct {
	ID           uuid.UUID    `json:"id"`
	AgentID      uuid.UUID    `json:"agent_id"`
	BeliefID     uuid.UUID    `json:"belief_id"`
	Side         PositionSide `json:"side"`
	LockedAmount int64        `json:"locked_amount"`
	CreatedAt    time.Time    `json:"created_at"`
}
