package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/api/middleware"
	"github.com/veritaslabs/veritas/internal/domain"
	"github.com/veritaslabs/veritas/internal/settlement"
	"github.com/veritaslabs/veritas/internal/store"
)

type BeliefHandler struct {
	beliefs     domain.BeliefStore
	agents      domain.AgentStore
	submissions domain.SubmissionStore
	positions   domain.PositionStore
	epochs      domain.EpochStateStore
}

func NewBeliefHandler(beliefs domain.BeliefStore, agents domain.AgentStore, submissions domain.SubmissionStore, positions domain.PositionStore, epochs domain.EpochStateStore) *BeliefHandler {
	return &BeliefHandler{
		beliefs:     beliefs,
		agents:      agents,
		submissions: submissions,
		positions:   positions,
		epochs:      epochs,
	}
}

type createBeliefRequest struct {
	CreatorAgentID   string  `json:"creator_agent_id"`
	Title            string  `json:"title"`
	ExpirationEpochs int64   `json:"expiration_epochs"`
	InitialAggregate float64 `json:"initial_aggregate"`
}

func (h *BeliefHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createBeliefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creatorID, err := uuid.Parse(req.CreatorAgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid creator_agent_id")
		return
	}
	if req.ExpirationEpochs <= 0 {
		writeError(w, http.StatusBadRequest, "expiration_epochs must be positive")
		return
	}
	if req.InitialAggregate == 0 {
		req.InitialAggregate = 0.5
	}
	if req.InitialAggregate <= 0 || req.InitialAggregate >= 1 {
		writeError(w, http.StatusBadRequest, "initial_aggregate must be inside (0,1)")
		return
	}

	if _, err := h.agents.GetByID(r.Context(), creatorID, tenant.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "creator agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load creator agent")
		return
	}

	current, err := h.epochs.Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read current epoch")
		return
	}

	belief := &domain.Belief{
		TenantID:                    tenant.ID,
		CreatorAgentID:              creatorID,
		Title:                       req.Title,
		CreatedEpoch:                current,
		ExpirationEpoch:             current + req.ExpirationEpochs,
		PreviousAggregate:           req.InitialAggregate,
		PreviousDisagreementEntropy: 1,
		Status:                      domain.BeliefStatusActive,
	}
	if err := h.beliefs.Create(r.Context(), belief); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create belief")
		return
	}

	writeJSON(w, http.StatusCreated, belief)
}

func (h *BeliefHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	belief, ok := h.beliefForRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, belief)
}

// Consensus returns the running aggregate in the fixed-point form the
// settlement layer consumes.
func (h *BeliefHandler) Consensus(w http.ResponseWriter, r *http.Request) {
	belief, ok := h.beliefForRequest(w, r)
	if !ok {
		return
	}

	score, err := settlement.FromProbability(belief.PreviousAggregate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored aggregate is invalid")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"belief_id":            belief.ID,
		"status":               belief.Status,
		"consensus":            score,
		"disagreement_entropy": belief.PreviousDisagreementEntropy,
	})
}

type createSubmissionRequest struct {
	AgentID        string  `json:"agent_id"`
	BeliefValue    float64 `json:"belief_value"`
	MetaPrediction float64 `json:"meta_prediction"`
	StakeAllocated int64   `json:"stake_allocated"`
}

// CreateSubmission records the agent's current stance. A first submission on
// a belief claims one of the agent's active-belief slots, diluting their
// effective stake everywhere.
func (h *BeliefHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	belief, ok := h.beliefForRequest(w, r)
	if !ok {
		return
	}
	if belief.Status != domain.BeliefStatusActive {
		writeError(w, http.StatusConflict, "belief is not active")
		return
	}

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent_id")
		return
	}
	if !validProbability(req.BeliefValue) || !validProbability(req.MetaPrediction) {
		writeError(w, http.StatusBadRequest, "belief_value and meta_prediction must be in [0,1]")
		return
	}
	if req.StakeAllocated < 0 {
		writeError(w, http.StatusBadRequest, "stake_allocated must not be negative")
		return
	}

	if _, err := h.agents.GetByID(r.Context(), agentID, tenant.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}

	current, err := h.epochs.Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read current epoch")
		return
	}

	sub := &domain.Submission{
		BeliefID:       belief.ID,
		AgentID:        agentID,
		BeliefValue:    req.BeliefValue,
		MetaPrediction: req.MetaPrediction,
		Epoch:          current,
		StakeAllocated: req.StakeAllocated,
	}
	created, err := h.submissions.Upsert(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record submission")
		return
	}
	if created {
		if err := h.agents.IncrementActiveBeliefs(r.Context(), agentID, 1); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update belief participation")
			return
		}
	}

	writeJSON(w, http.StatusCreated, sub)
}

type createPositionRequest struct {
	AgentID      string `json:"agent_id"`
	Side         string `json:"side"`
	LockedAmount int64  `json:"locked_amount"`
}

// CreatePosition locks stake against a belief; redistribution later reads
// the gross lock as the sum of the agent's non-zero positions.
func (h *BeliefHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	belief, ok := h.beliefForRequest(w, r)
	if !ok {
		return
	}

	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent_id")
		return
	}
	side := domain.PositionSide(req.Side)
	if side != domain.PositionSideYes && side != domain.PositionSideNo {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	if req.LockedAmount <= 0 {
		writeError(w, http.StatusBadRequest, "locked_amount must be positive")
		return
	}

	if _, err := h.agents.GetByID(r.Context(), agentID, tenant.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}

	position := &domain.Position{
		AgentID:      agentID,
		BeliefID:     belief.ID,
		Side:         side,
		LockedAmount: req.LockedAmount,
	}
	if err := h.positions.Create(r.Context(), position); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create position")
		return
	}

	writeJSON(w, http.StatusCreated, position)
}

func (h *BeliefHandler) beliefForRequest(w http.ResponseWriter, r *http.Request) (*domain.Belief, bool) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid belief id")
		return nil, false
	}

	belief, err := h.beliefs.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "belief not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load belief")
		return nil, false
	}
	return belief, true
}
