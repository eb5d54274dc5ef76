// Package main provides the API router setup.
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/emsi-ai/tariff-engine/cmd/tariff-engine-api/handlers"
	"github.com/emsi-ai/tariff-engine/cmd/tariff-engine-api/middleware"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

const requestTimeout = 60 * time.Second

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, eng *engine.Engine) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(requestTimeout))

	// Health checks (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(eng.Health(r.Context()))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Initialize handlers
	searchHandler := handlers.NewSearchHandler(logger, eng)
	ingestionHandler := handlers.NewIngestionHandler(logger, eng)
	chatHandler := handlers.NewChatHandler(logger, eng)
	documentHandler := handlers.NewDocumentHandler(logger, eng)
	adminHandler := handlers.NewAdminHandler(logger, eng)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion routes
		r.Post("/ingest", ingestionHandler.Ingest)

		// Search routes
		r.Route("/search", func(r chi.Router) {
			r.Post("/hybrid", searchHandler.Hybrid)
			r.Post("/chunks", searchHandler.Chunks)
			r.Post("/attributes", searchHandler.Attributes)
		})

		// Chat routes
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chatHandler.Ask)
			r.Get("/{sessionID}/history", chatHandler.History)
			r.Delete("/{sessionID}/history", chatHandler.ClearHistory)
		})

		// Document routes
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documentHandler.List)
			r.Post("/upload", ingestionHandler.Upload)
			r.Delete("/{documentID}", documentHandler.Delete)
		})

		r.Delete("/chunks/{chunkID}", documentHandler.DeleteChunk)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync", adminHandler.Sync)
			r.Get("/sync/status", adminHandler.SyncStatus)
			r.Post("/purge", adminHandler.Purge)
		})
	})

	return r
}
