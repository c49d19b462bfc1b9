package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// parseAPIKeys splits a comma-separated key list. Several keys may be live
// at once so a key can be rotated without downtime.
func parseAPIKeys(raw string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// requestKey returns the key from X-API-Key, or from Authorization: Bearer <key>.
func requestKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// APIKeyAuth rejects /v1 requests that do not carry one of apiKeys
// (comma-separated). Missing keys get 401, unknown keys 403.
func APIKeyAuth(apiKeys string) func(http.Handler) http.Handler {
	keys := parseAPIKeys(apiKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>")
				return
			}

			matched := 0
			for _, k := range keys {
				matched |= subtle.ConstantTimeCompare([]byte(key), k)
			}
			if matched != 1 {
				log.Printf("[Auth] Rejected key for %s %s (request %s)", r.Method, r.URL.Path, middleware.GetReqID(r.Context()))
				respondError(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
