package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/utils"
)

// AdminMiddleware protects admin routes. It accepts either the shared admin
// secret in X-Admin-Secret or a short-lived admin JWT as a Bearer token.
func AdminMiddleware(adminSecret string, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret := r.Header.Get("X-Admin-Secret"); secret != "" {
				if subtle.ConstantTimeCompare([]byte(secret), []byte(adminSecret)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
				utils.RespondWithError(w, http.StatusForbidden, utils.ErrKindForbidden, "Invalid admin secret")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if err := auth.ValidateAdminJWT(token, jwtSecret); err != nil {
					utils.RespondWithError(w, http.StatusForbidden, utils.ErrKindForbidden, "Invalid or expired token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			utils.RespondWithError(w, http.StatusUnauthorized, utils.ErrKindUnauthenticated, "Missing admin credentials")
		})
	}
}
