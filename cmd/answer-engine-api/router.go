// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/answerline/answer-engine/cmd/answer-engine-api/handlers"
	"github.com/answerline/answer-engine/cmd/answer-engine-api/middleware"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
	"github.com/answerline/answer-engine/internal/storage"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(
	logger *observability.Logger,
	cfg *config.Config,
	store *storage.Store,
	orc *orchestrator.Orchestrator,
	pipeline *ingest.Pipeline,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"answer-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Initialize handlers
	queryHandler := handlers.NewQueryHandler(logger, orc)
	ingestHandler := handlers.NewIngestHandler(logger, pipeline, cfg.Ingestion.MaxFileBytes)
	conversationsHandler := handlers.NewConversationsHandler(logger, orc.Conversations())
	webhookHandler := handlers.NewWebhookHandler(logger, cfg, orc)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", queryHandler.Query)

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/", ingestHandler.Ingest)
			r.Post("/file", ingestHandler.IngestFile)
		})

		r.Get("/conversations/{conversationId}/messages", conversationsHandler.Messages)
	})

	// Channel webhooks
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/whatsapp", webhookHandler.VerifyWhatsApp)
		r.Post("/{channel}", webhookHandler.Receive)
	})

	return r
}
