package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/veritaslabs/veritas/internal/service"
)

type EpochHandler struct {
	epochs *service.EpochService
}

func NewEpochHandler(epochs *service.EpochService) *EpochHandler {
	return &EpochHandler{epochs: epochs}
}

type processEpochRequest struct {
	CurrentEpoch *int64 `json:"current_epoch,omitempty"`
}

// Process manually triggers one epoch boundary. Without a current_epoch the
// global counter is used.
func (h *EpochHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processEpochRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.epochs.ProcessEpoch(r.Context(), req.CurrentEpoch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "epoch processing failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
