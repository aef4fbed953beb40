package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/config"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/utils"
)

// handleAdminKeys serves credential creation and listing.
func (d *Dependencies) handleAdminKeys(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			d.createKey(w, r, cfg)
		case http.MethodGet:
			d.listKeys(w, r)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		}
	}
}

// createKey mints a new API key. The plaintext key appears in this response
// and nowhere else; only its digest is stored.
func (d *Dependencies) createKey(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "invalid JSON body")
		return
	}
	if req.Label == "" {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "missing 'label' field")
		return
	}
	if req.RateLimitPerMin <= 0 {
		req.RateLimitPerMin = cfg.Limits.DefaultRateLimitPerMin
	}
	if req.MonthlyTokenLimit <= 0 {
		req.MonthlyTokenLimit = cfg.Limits.DefaultMonthlyTokenLimit
	}

	rawKey, err := auth.GenerateKey(cfg.Limits.KeyPrefix)
	if err != nil {
		d.Logger.Error("Key generation failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "key generation failed")
		return
	}

	cred := &models.Credential{
		ID:                uuid.New(),
		KeyHash:           auth.HashKey(rawKey),
		Label:             req.Label,
		OwnerEmail:        req.OwnerEmail,
		RateLimitPerMin:   req.RateLimitPerMin,
		MonthlyTokenLimit: req.MonthlyTokenLimit,
		IsActive:          true,
	}

	if err := d.Admin.Create(r.Context(), cred); err != nil {
		d.Logger.Error("Key creation failed", "label", req.Label, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
		return
	}

	d.Logger.Info("Created API key", "id", cred.ID, "label", cred.Label)

	utils.RespondWithJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:                cred.ID,
		Key:               rawKey,
		Label:             cred.Label,
		OwnerEmail:        cred.OwnerEmail,
		RateLimitPerMin:   cred.RateLimitPerMin,
		MonthlyTokenLimit: cred.MonthlyTokenLimit,
		CreatedAt:         cred.CreatedAt,
		Message:           "Save this key -- it will not be shown again.",
	})
}

// listKeys returns all credentials, digests only.
func (d *Dependencies) listKeys(w http.ResponseWriter, r *http.Request) {
	creds, err := d.Admin.List(r.Context())
	if err != nil {
		d.Logger.Error("Key list failed", "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
		return
	}

	entries := make([]KeyListEntry, 0, len(creds))
	for _, cred := range creds {
		entries = append(entries, KeyListEntry{
			ID:                cred.ID,
			Label:             cred.Label,
			OwnerEmail:        cred.OwnerEmail,
			RateLimitPerMin:   cred.RateLimitPerMin,
			MonthlyTokenLimit: cred.MonthlyTokenLimit,
			TokensUsedMonth:   cred.TokensUsedMonth,
			MonthResetAt:      cred.MonthResetAt,
			IsActive:          cred.IsActive,
			CreatedAt:         cred.CreatedAt,
			LastUsedAt:        cred.LastUsedAt,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, entries)
}

// handleAdminKeyByID serves revocation of a single credential.
func (d *Dependencies) handleAdminKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/admin/api-keys/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, utils.ErrKindInvalidRequest, "invalid key id")
		return
	}

	if err := d.Admin.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, utils.ErrKindNotFound, "Key not found")
			return
		}
		d.Logger.Error("Key revocation failed", "id", id, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
		return
	}

	d.Logger.Info("Revoked API key", "id", id)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("API key %s revoked", id),
	})
}

// handleAdminToken exchanges the admin secret for a short-lived JWT, so
// follow-up admin calls do not need to carry the shared secret.
func (d *Dependencies) handleAdminToken(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, utils.ErrKindInvalidRequest, "method not allowed")
			return
		}

		secret := r.Header.Get("X-Admin-Secret")
		if secret == "" || !auth.DigestsEqual(auth.HashKey(secret), auth.HashKey(cfg.AdminSecret)) {
			utils.RespondWithError(w, http.StatusForbidden, utils.ErrKindForbidden, "Invalid admin secret")
			return
		}

		token, expiresAt, err := auth.GenerateAdminJWT(cfg.JWTSecret)
		if err != nil {
			d.Logger.Error("Admin token generation failed", "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, utils.ErrKindInternal, "token generation failed")
			return
		}

		utils.RespondWithJSON(w, http.StatusOK, TokenResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: expiresAt,
		})
	}
}
