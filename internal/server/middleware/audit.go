package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quantrend/dexarb/internal/domain"
)

// Audit returns middleware that records every mutating API call in the audit
// store: the matched route, concrete path, response status, and caller.
// Reads pass through untouched. Recording is best-effort; a store failure is
// logged and never surfaces to the client.
func Audit(store domain.AuditStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			event := r.Pattern
			if event == "" {
				// No route matched; still worth a trace.
				event = r.Method + " (unmatched)"
			}
			// The request context dies with the client connection; the audit
			// row must outlive it.
			ctx := context.WithoutCancel(r.Context())
			err := store.Log(ctx, event, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rw.status,
				"remote": r.RemoteAddr,
			})
			if err != nil {
				logger.ErrorContext(ctx, "audit record failed",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
