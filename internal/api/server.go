package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/report"
	"github.com/expertise-auto/chiffrage/internal/stats"
	"github.com/expertise-auto/chiffrage/internal/tariff"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, resolver *tariff.Resolver, reports *report.Service, statsSvc *stats.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, resolver, reports, statsSvc, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/v1", func(r chi.Router) {
		// Reports
		r.Post("/reports", handler.CreateReport)
		r.Get("/reports/{id}", handler.GetReport)
		r.Post("/reports/{id}/recalculate", handler.RecalculateReport)
		r.Get("/reports/{id}/breakdown", handler.GetBreakdown)
		r.Put("/reports/{id}/status", handler.UpdateReportStatus)
		r.Put("/reports/{id}/supplies/{supplyID}", handler.UpdateSupply)

		// Tariff table management
		r.Get("/tariffs", handler.ListTariffs)
		r.Post("/tariffs", handler.CreateTariff)
		r.Get("/tariffs/{id}", handler.GetTariff)
		r.Put("/tariffs/{id}", handler.UpdateTariff)
		r.Delete("/tariffs/{id}", handler.DeleteTariff)

		// Statistics
		r.Get("/stats", handler.GetStats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
