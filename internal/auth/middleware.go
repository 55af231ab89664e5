package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// QueryParam is the query parameter accepted in place of the key header.
// Browsers cannot set headers on WebSocket upgrades.
const QueryParam = "api_key"

// Middleware returns an http middleware that enforces API key authentication
// on every request it wraps.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed (pass-through).
//   - Otherwise the key is read from header, falling back to the api_key query
//     parameter, and compared to key in constant time.
//   - A missing or incorrect key is answered with 401 and a JSON error body.
//
// Paths listed in open bypass the check (exact match).
func Middleware(mode, header, key string, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		skip := make(map[string]bool, len(open))
		for _, p := range open {
			skip[p] = true
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimSpace(r.Header.Get(header))
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				unauthorized(w, got == "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, missing bool) {
	msg := "invalid api key"
	if missing {
		msg = "missing api key"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
