package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the API. Origins are
// matched exactly; an empty list means no browser origin is allowed,
// which is the safe state until deployment config fills it in.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns the per-environment baseline. Production
// starts with no origins; deployment config supplies them. Development
// pre-allows the usual local frontend dev servers.
func DefaultCORSConfig(env string) *CORSConfig {
	cfg := &CORSConfig{
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		// Retry-After drives client backoff when the login guard or the
		// per-IP limiter throttles a request.
		ExposedHeaders:   []string{"Content-Length", "Authorization", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           3600,
	}

	if env != "production" {
		cfg.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}

	return cfg
}

// CORS returns a middleware enforcing config. The origin allow-list is
// indexed once at construction; requests from unlisted origins get no
// CORS headers at all, so the browser blocks the response.
func CORS(config *CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(config.AllowedOrigins))
	for _, origin := range config.AllowedOrigins {
		allowed[origin] = true
	}

	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Responses vary by origin even when we emit nothing, or a
			// cache could serve an allowed response to a blocked origin.
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Expose-Headers", exposed)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
