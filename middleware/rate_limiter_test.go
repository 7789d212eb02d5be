package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"momentumAPI/internal/config"
)

func TestRateLimitMiddlewareHonorsConfiguredBurst(t *testing.T) {
	origRPS, origBurst := config.Cfg.RateLimitPerSecond, config.Cfg.RateLimitBurst
	config.Cfg.RateLimitPerSecond = 1
	config.Cfg.RateLimitBurst = 2
	defer func() {
		config.Cfg.RateLimitPerSecond = origRPS
		config.Cfg.RateLimitBurst = origBurst
	}()

	handler := RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// A fresh IP gets the full burst, then 429s until tokens refill.
	fire := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/challenges", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, fire("203.0.113.7"))
	assert.Equal(t, http.StatusOK, fire("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, fire("203.0.113.7"))

	// The limit is tracked per IP, so another client is unaffected.
	assert.Equal(t, http.StatusOK, fire("203.0.113.8"))
}
