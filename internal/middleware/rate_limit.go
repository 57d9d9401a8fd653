package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig bounds how often a single client IP may hit an
// endpoint. This is the outer, transport-level throttle; the login
// guard's per-account and per-IP failure counters sit behind it and
// track failed credentials specifically.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit is the profile for the public credential
// endpoints: login, registration, password reset and verification.
// Five attempts a minute is ample for a human and useless for a
// credential-stuffing run.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 5}
}

// RateLimitByIP throttles by client IP over a one-minute window.
// Rejections carry Retry-After so well-behaved clients can pace
// themselves instead of hammering.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	window := time.Minute

	return httprate.Limit(
		config.RequestsPerMinute,
		window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"Too many requests, slow down"}`))
		}),
	)
}
