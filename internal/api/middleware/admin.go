package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mcoot/dicefunnel/internal/api/apierr"
)

// AdminKeyHeader carries the admin API key
const AdminKeyHeader = "X-API-Key"

// AdminKey rejects requests without the configured admin key. The key may
// also be passed as the api_key query parameter, since browser EventSource
// clients cannot set headers. An empty configured key rejects everything.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(AdminKeyHeader)
			if given == "" {
				given = r.URL.Query().Get("api_key")
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
