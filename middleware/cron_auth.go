package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"momentumAPI/internal/config"
)

// CronAuthMiddleware protects the scheduled-job trigger endpoints with
// a shared bearer secret. The external scheduler is the only caller.
func CronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := config.Cfg.CronSecret
		if secret == "" {
			respondWithError(w, http.StatusServiceUnavailable, "Cron trigger secret not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			respondWithError(w, http.StatusUnauthorized, "Invalid cron secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}
