package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// InternalTokenHeader carries the shared secret for internal endpoints
const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken rejects requests whose X-Internal-Token does not match
// token. An empty token leaves the route open.
func RequireInternalToken(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(InternalTokenHeader)), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
