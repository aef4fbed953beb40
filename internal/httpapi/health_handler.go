package httpapi

import (
	"net/http"
	"time"

	"ollama_gateway/internal/utils"
)

const gatewayVersion = "1.0.0"

// handleHealth is the liveness probe, no auth required. The store and
// backend checks are advisory; a degraded gateway still answers 200 so load
// balancers keep it up while dependencies recover.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if d.DB != nil {
		if err := d.DB.Health(r.Context()); err != nil {
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if d.backendsAlive != nil {
		if err := d.backendsAlive(r.Context()); err != nil {
			checks["backend"] = err.Error()
		} else {
			checks["backend"] = "ok"
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   gatewayVersion,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
