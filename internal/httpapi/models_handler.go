package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"ollama_gateway/internal/utils"
)

// handleModels lists the models available on the backend.
func (d *Dependencies) handleModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/v1/models"

	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	if _, ok := d.authorize(w, r, endpoint); !ok {
		return
	}

	models, err := d.Backend.ListModels(r.Context())
	if err != nil {
		d.Logger.Error("Model list failed", "error", err)
		d.Metrics.RecordRequest(endpoint, http.StatusBadGateway, time.Since(start))
		utils.RespondWithError(w, http.StatusBadGateway, utils.ErrKindBackendUnavailable, "Inference backend unreachable")
		return
	}

	entries := make([]ModelEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, ModelEntry{
			ID:      m.Name,
			Object:  "model",
			OwnedBy: "local",
			Details: m.Details,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, ModelListResponse{Object: "list", Data: entries})
	d.Metrics.RecordRequest(endpoint, http.StatusOK, time.Since(start))
}

// handleModelPull downloads a model onto the backend.
func (d *Dependencies) handleModelPull(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/v1/models/pull"

	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	if _, ok := d.authorize(w, r, endpoint); !ok {
		return
	}

	var req PullModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "missing 'model' field")
		return
	}

	d.Logger.Info("Pulling model", "model", req.Model)

	status, err := d.Backend.Pull(r.Context(), req.Model)
	if err != nil {
		d.Logger.Error("Model pull failed", "model", req.Model, "error", err)
		d.Metrics.RecordRequest(endpoint, http.StatusBadGateway, time.Since(start))
		utils.RespondWithError(w, http.StatusBadGateway, utils.ErrKindBackendError, "Model pull failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(status)
	d.Metrics.RecordRequest(endpoint, http.StatusOK, time.Since(start))
}
