package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger

	// Services
	authService      driving.AuthService
	ingestionService driving.IngestionService
	catalogService   driving.CatalogService
	retrievalService driving.RetrievalService
	adminService     driving.AdminService
	scheduleService  driving.ScheduleService

	// Infrastructure
	taskQueue   driven.TaskQueue
	db          Pinger // PostgreSQL health check
	redisClient Pinger // Redis health check (optional)
	worker      Pinger // in-process worker health check (optional)

	maxUploadBytes int64
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 50 << 20,
	}
}

// Services groups the driving ports the server routes to.
type Services struct {
	Auth      driving.AuthService
	Ingestion driving.IngestionService
	Catalog   driving.CatalogService
	Retrieval driving.RetrievalService
	Admin     driving.AdminService
	Schedules driving.ScheduleService // optional, nil when the scheduler is disabled

	// Worker reports the in-process worker's health on /ready (optional)
	Worker Pinger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	svc Services,
	taskQueue driven.TaskQueue,
	db Pinger,
	redisClient Pinger, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultConfig().MaxUploadBytes
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger,
		authService:      svc.Auth,
		ingestionService: svc.Ingestion,
		catalogService:   svc.Catalog,
		retrievalService: svc.Retrieval,
		adminService:     svc.Admin,
		scheduleService:  svc.Schedules,
		taskQueue:        taskQueue,
		db:               db,
		redisClient:      redisClient,
		worker:           svc.Worker,
		maxUploadBytes:   maxUpload,
	}

	s.setupRoutes()

	var h http.Handler = s.router
	h = NewCORSMiddleware(cfg.AllowedOrigins).Handler(h)
	h = NewRecoveryMiddleware().Handler(h)
	h = NewLoggingMiddleware(logger).Handler(h)
	s.handler = h

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(authMiddleware.RequireAdmin(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Ingestion
	s.router.Handle("POST /api/v1/sources/{kind}/{id}/ingest", authed(s.handleIngestSource))
	s.router.Handle("GET /api/v1/sources/{kind}/{id}/job", authed(s.handleLatestJob))
	s.router.Handle("DELETE /api/v1/sources/{kind}/{id}", admin(s.handleDeleteSource))
	s.router.Handle("GET /api/v1/jobs/{id}", authed(s.handleGetJob))

	// Retrieval
	s.router.Handle("POST /api/v1/search", authed(s.handleSearch))
	s.router.Handle("POST /api/v1/ask", authed(s.handleAsk))
	s.router.Handle("GET /api/v1/classes/{id}/embedding-stats", authed(s.handleEmbeddingStats))

	// Admin
	s.router.Handle("GET /api/v1/admin/credentials", admin(s.handleCredentials))
	s.router.Handle("POST /api/v1/admin/index", admin(s.handleBuildIndex))
	s.router.Handle("POST /api/v1/admin/catalog/ingest", admin(s.handleCatalogIngest))
	s.router.Handle("GET /api/v1/admin/catalog", admin(s.handleGetCatalog))
	s.router.Handle("GET /api/v1/admin/queue", admin(s.handleQueueStats))
	s.router.Handle("POST /api/v1/admin/reembed", admin(s.handleReembed))
	s.router.Handle("GET /api/v1/admin/schedules", admin(s.handleListSchedules))
	s.router.Handle("PUT /api/v1/admin/schedules/{id}", admin(s.handleUpdateSchedule))
	s.router.Handle("POST /api/v1/admin/schedules/{id}/trigger", admin(s.handleTriggerSchedule))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
