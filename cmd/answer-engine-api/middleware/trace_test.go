package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/observability"
)

func TestTracePropagatesRequestID(t *testing.T) {
	var seen string
	handler := chimiddleware.RequestID(Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.TraceIDFromContext(r.Context())
		assert.Equal(t, chimiddleware.GetReqID(r.Context()), seen)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
}

func TestTraceWithoutRequestID(t *testing.T) {
	handler := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, observability.TraceIDFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
}
