package gateway

import (
	"crypto/subtle"
	"net/http"
)

// keyAuthMiddleware validates the shared proxy key, presented either in
// the X-Proxy-Key header or the key query parameter. Comparison is
// constant time. An empty configured key disables the check.
func keyAuthMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-Proxy-Key")
			if presented == "" {
				presented = r.URL.Query().Get("key")
			}
			if !constantTimeEqual(presented, key) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
