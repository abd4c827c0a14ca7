package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/answerline/answer-engine/internal/observability"
)

// Trace promotes the chi request ID into the trace-ID context so loggers
// derived with WithContext carry it. Must run after chi's RequestID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(observability.ContextWithTraceID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}
