package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/service"
	"github.com/veritaslabs/veritas/internal/store"
)

// PipelineHandler exposes each stage of the epoch pipeline as a synchronous
// call, mirroring the orchestrator's internal sequence for collaborators
// that drive stages individually.
type PipelineHandler struct {
	weights        *service.WeightService
	aggregation    *service.AggregationService
	decomposition  *service.DecompositionService
	mirrorDescent  *service.MirrorDescentService
	learning       *service.LearningService
	bts            *service.BTSService
	redistribution *service.RedistributionService
}

func NewPipelineHandler(
	weights *service.WeightService,
	aggregation *service.AggregationService,
	decomposition *service.DecompositionService,
	mirrorDescent *service.MirrorDescentService,
	learning *service.LearningService,
	bts *service.BTSService,
	redistribution *service.RedistributionService,
) *PipelineHandler {
	return &PipelineHandler{
		weights:        weights,
		aggregation:    aggregation,
		decomposition:  decomposition,
		mirrorDescent:  mirrorDescent,
		learning:       learning,
		bts:            bts,
		redistribution: redistribution,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case service.IsStateConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func beliefIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid belief id")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDMap(in map[string]float64) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(in))
	for k, v := range in {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func parseUUIDList(in []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

type weightsRequest struct {
	ParticipantAgents []string `json:"participant_agents"`
}

func (h *PipelineHandler) CalculateWeights(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req weightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agentIDs, err := parseUUIDList(req.ParticipantAgents)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant agent id")
		return
	}

	result, err := h.weights.CalculateWeights(r.Context(), beliefID, agentIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type aggregateRequest struct {
	Weights map[string]float64 `json:"weights"`
	Epoch   int64              `json:"epoch"`
}

func (h *PipelineHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	weights, err := parseUUIDMap(req.Weights)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id in weights")
		return
	}

	result, err := h.aggregation.Aggregate(r.Context(), beliefID, weights, req.Epoch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PipelineHandler) Decompose(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	weights, err := parseUUIDMap(req.Weights)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id in weights")
		return
	}

	result, err := h.decomposition.Decompose(r.Context(), beliefID, weights, req.Epoch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type mirrorDescentRequest struct {
	PreAggregate float64            `json:"pre_aggregate"`
	Certainty    float64            `json:"certainty"`
	ActiveAgents []string           `json:"active_agents"`
	Weights      map[string]float64 `json:"weights"`
}

func (h *PipelineHandler) MirrorDescent(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req mirrorDescentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	weights, err := parseUUIDMap(req.Weights)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id in weights")
		return
	}
	active, err := parseUUIDList(req.ActiveAgents)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid active agent id")
		return
	}

	result, err := h.mirrorDescent.Update(r.Context(), beliefID, req.PreAggregate, req.Certainty, active, weights)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type learningRequest struct {
	PostDisagreementEntropy float64 `json:"post_disagreement_entropy"`
	PostAggregate           float64 `json:"post_aggregate"`
}

func (h *PipelineHandler) LearningAssessment(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req learningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.learning.Assess(r.Context(), beliefID, req.PostDisagreementEntropy, req.PostAggregate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type btsRequest struct {
	PostBeliefs               map[string]float64 `json:"post_beliefs"`
	LeaveOneOutAggregates     map[string]float64 `json:"leave_one_out_aggregates"`
	LeaveOneOutMetaAggregates map[string]float64 `json:"leave_one_out_meta_aggregates"`
	Weights                   map[string]float64 `json:"weights"`
	MetaPredictions           map[string]float64 `json:"meta_predictions"`
}

func (h *PipelineHandler) BTSScore(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req btsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	maps := make([]map[uuid.UUID]float64, 5)
	for i, in := range []map[string]float64{req.PostBeliefs, req.LeaveOneOutAggregates, req.LeaveOneOutMetaAggregates, req.Weights, req.MetaPredictions} {
		m, err := parseUUIDMap(in)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		maps[i] = m
	}

	result, err := h.bts.Score(beliefID, maps[0], maps[1], maps[2], maps[3], maps[4])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type redistributeRequest struct {
	CurrentEpoch      int64              `json:"current_epoch"`
	InformationScores map[string]float64 `json:"information_scores"`
}

func (h *PipelineHandler) Redistribute(w http.ResponseWriter, r *http.Request) {
	beliefID, ok := beliefIDParam(w, r)
	if !ok {
		return
	}
	var req redistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scores, err := parseUUIDMap(req.InformationScores)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id in scores")
		return
	}

	result, err := h.redistribution.Redistribute(r.Context(), beliefID, req.CurrentEpoch, scores)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
