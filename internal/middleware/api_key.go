package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// CredentialKey is the context key for the authenticated credential
	CredentialKey ContextKey = "credential"
)

// extractAPIKey pulls the API key from X-API-Key or a Bearer token.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// APIKeyMiddleware authenticates requests and puts the matched credential in
// the request context. When the credential store cannot be reached the
// request is refused rather than let through unverified.
func APIKeyMiddleware(store auth.CredentialStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, utils.ErrKindUnauthenticated, "Missing API key")
				return
			}

			cred, err := store.Lookup(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					utils.RespondWithError(w, http.StatusUnauthorized, utils.ErrKindUnauthenticated, "Invalid API key")
					return
				}
				utils.RespondWithError(w, http.StatusServiceUnavailable, utils.ErrKindStoreUnavailable, "Credential store unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), CredentialKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCredential retrieves the authenticated credential from the request context
func GetCredential(ctx context.Context) (*models.Credential, bool) {
	cred, ok := ctx.Value(CredentialKey).(*models.Credential)
	return cred, ok
}
