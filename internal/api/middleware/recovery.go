package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/dicefunnel/internal/api/apierr"
	"github.com/mcoot/dicefunnel/internal/middleware"
)

// Recovery creates panic recovery middleware for the API.
// Panics become INTERNAL_ERROR JSON naming the request id for support.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler)
}

func apiPanicHandler(w http.ResponseWriter, r *http.Request, _ any) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		apierr.WriteError(w, apierr.NewInternalErrorRef(id))
		return
	}
	apierr.WriteError(w, apierr.NewInternalError())
}
