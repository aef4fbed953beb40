package httpapi

import (
	"net/http"
	"time"

	"ollama_gateway/internal/middleware"
	"ollama_gateway/internal/utils"
)

const recentUsageLimit = 20

// handleUsage returns consumption stats for the authenticated credential.
// The counter is read fresh from the store so a caller sees commits from
// requests that just finished, not the possibly stale snapshot that
// authenticated this request.
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := "/v1/usage"

	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	cred, ok := middleware.GetCredential(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "no credential in request context")
		return
	}

	fresh, err := d.Admin.GetByID(r.Context(), cred.ID)
	if err != nil {
		d.Logger.Error("Usage lookup failed", "api_key_id", cred.ID, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
		return
	}

	records, err := d.Usage.Recent(r.Context(), cred.ID, recentUsageLimit)
	if err != nil {
		d.Logger.Error("Usage history lookup failed", "api_key_id", cred.ID, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
		return
	}

	recent := make([]UsageLogEntry, 0, len(records))
	for _, rec := range records {
		recent = append(recent, UsageLogEntry{
			Model:       rec.Model,
			Endpoint:    rec.Endpoint,
			TotalTokens: rec.TotalTokens,
			CreatedAt:   rec.CreatedAt,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, UsageResponse{
		KeyID:               fresh.ID,
		Label:               fresh.Label,
		MonthlyTokenLimit:   fresh.MonthlyTokenLimit,
		TokensUsedThisMonth: fresh.TokensUsedMonth,
		MonthResetsAt:       fresh.MonthResetAt,
		LastUsedAt:          fresh.LastUsedAt,
		RecentRequests:      recent,
	})
	d.Metrics.RecordRequest(endpoint, http.StatusOK, time.Since(start))
}
