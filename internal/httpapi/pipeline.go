package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"ollama_gateway/internal/backend"
	"ollama_gateway/internal/middleware"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/quota"
	"ollama_gateway/internal/usage"
	"ollama_gateway/internal/utils"
)

// authorize runs the pre-forward checks for an authenticated request: the
// quota pre-check first, then the rate limit. The order matters, a request
// that will be refused for quota must not consume a rate limit slot.
func (d *Dependencies) authorize(w http.ResponseWriter, r *http.Request, endpoint string) (*models.Credential, bool) {
	cred, ok := middleware.GetCredential(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "no credential in request context")
		return nil, false
	}

	if err := d.Ledger.CheckAndReserve(cred, time.Now()); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			d.Metrics.RecordRejection(endpoint, utils.ErrKindQuotaExceeded)
			utils.RespondWithError(w, http.StatusTooManyRequests, utils.ErrKindQuotaExceeded,
				fmt.Sprintf("Monthly token limit reached (%d tokens). Resets next month.", cred.MonthlyTokenLimit))
			return nil, false
		}
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "quota check failed")
		return nil, false
	}

	if !d.RateLimit.Allow(cred.ID.String(), cred.RateLimitPerMin) {
		d.Metrics.RecordRejection(endpoint, utils.ErrKindRateLimited)
		utils.RespondWithError(w, http.StatusTooManyRequests, utils.ErrKindRateLimited,
			fmt.Sprintf("Rate limit exceeded: %d requests/min. Try again later.", cred.RateLimitPerMin))
		return nil, false
	}

	return cred, true
}

// respondBackendFailure maps a backend call failure to a client response.
// The attempt still gets a zero-token usage record so failed calls show up
// in the request history.
func (d *Dependencies) respondBackendFailure(w http.ResponseWriter, err error, cred *models.Credential, model, endpoint string, start time.Time) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	d.Recorder.Record(usage.NewUsageRecord(cred.ID, model, endpoint, 0, 0, elapsed))

	var backendErr *backend.Error
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		d.Metrics.RecordRequest(endpoint, http.StatusBadGateway, time.Since(start))
		utils.RespondWithError(w, http.StatusBadGateway, utils.ErrKindBackendUnavailable, "Inference backend unreachable")
	case errors.As(err, &backendErr):
		d.Metrics.RecordRequest(endpoint, http.StatusBadGateway, time.Since(start))
		utils.RespondWithError(w, http.StatusBadGateway, utils.ErrKindBackendError, backendErr.Message)
	default:
		d.Metrics.RecordRequest(endpoint, http.StatusInternalServerError, time.Since(start))
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "Internal server error. Please try again.")
	}
}

// finishRequest records usage and metrics for a request that reached the
// backend and produced tokens.
func (d *Dependencies) finishRequest(cred *models.Credential, model, endpoint string, promptTokens, completionTokens int, start time.Time) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	d.Recorder.Record(usage.NewUsageRecord(cred.ID, model, endpoint, promptTokens, completionTokens, elapsed))
	d.Metrics.RecordTokens(model, promptTokens, completionTokens)
	d.Metrics.RecordRequest(endpoint, http.StatusOK, time.Since(start))
}
