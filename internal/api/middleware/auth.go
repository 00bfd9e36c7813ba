package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Credential sources, in the order they are consulted.
const (
	SourceHeader = "header"
	SourceBearer = "bearer"
	SourceQuery  = "query"
)

// credential returns the presented API key and where it came from.
// The query parameter exists for browser links to job reports.
func credential(r *http.Request) (key, source string) {
	if key = strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, SourceHeader
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, SourceBearer
		}
	}
	if key = strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
		return key, SourceQuery
	}
	return "", ""
}

// APIKeyAuth rejects requests that do not present apiKey. An empty apiKey
// rejects everything.
func APIKeyAuth(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, source := credential(r)

			var reason string
			switch {
			case key == "":
				reason = "missing API key"
			case len(want) == 0 || subtle.ConstantTimeCompare([]byte(key), want) != 1:
				reason = "invalid API key"
			}
			if reason != "" {
				logger.Warn("request rejected",
					"reason", reason,
					"source", source,
					"path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()),
				)
				unauthorized(w, reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tikgrabba"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

// CORS adds CORS headers for browser clients. Preflights end here.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		h.Set("Access-Control-Expose-Headers", "X-Request-Id")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
