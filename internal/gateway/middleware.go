package gateway

import (
	"net/http"

	"github.com/flowchat/gateway/internal/requestid"
)

// requestIDMiddleware makes every request traceable end to end: an
// inbound X-Request-ID is honored, otherwise one is minted. The id is
// placed in the context (worker clients forward it downstream) and
// echoed on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = requestid.New()
		}
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.WithContext(r.Context(), id)))
	})
}
