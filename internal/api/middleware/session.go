package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/dicefunnel/internal/api/apierr"
)

type contextKey string

const sessionTokenContextKey contextKey = "session_token"

// SessionCookieName is the cookie carrying the funnel session token
const SessionCookieName = "session"

// SessionToken requires a funnel session token and stores it in the context.
// Whether the session is still valid is decided by the handler.
func SessionToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			ctx := context.WithValue(r.Context(), sessionTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the session token from the request
func extractToken(r *http.Request) string {
	// Check Authorization header first
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	// Fall back to cookie
	cookie, err := r.Cookie(SessionCookieName)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// GetSessionToken returns the session token from the request context
func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenContextKey).(string)
	return token
}

// MustGetSessionToken returns the session token or panics
func MustGetSessionToken(ctx context.Context) string {
	token := GetSessionToken(ctx)
	if token == "" {
		panic("no session token in context - session middleware not applied?")
	}
	return token
}
