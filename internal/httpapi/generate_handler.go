package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"ollama_gateway/internal/backend"
	"ollama_gateway/internal/utils"
)

// handleGenerate serves raw text generation without a chat template.
func (d *Dependencies) handleGenerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/v1/generate"

	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	cred, ok := d.authorize(w, r, endpoint)
	if !ok {
		return
	}

	var req GenerateAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		req.Model = d.DefaultModel
	}
	if req.Prompt == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "missing 'prompt' field")
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	result, err := d.Backend.Generate(r.Context(), backend.GenerateRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		d.Logger.Error("Generate request failed", "model", req.Model, "error", err)
		d.respondBackendFailure(w, err, cred, req.Model, endpoint, start)
		return
	}

	resp := GenerateAPIResponse{
		ID:      newGenerationID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Text:    result.Text,
		Usage: UsageStats{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.PromptTokens + result.CompletionTokens,
		},
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
	d.finishRequest(cred, req.Model, endpoint, result.PromptTokens, result.CompletionTokens, start)
}
