// Package server provides the HTTP API for pixseek.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/catalog"
	"github.com/pixseek/pixseek/internal/config"
	"github.com/pixseek/pixseek/internal/events"
	"github.com/pixseek/pixseek/internal/index"
)

// Server is the HTTP server for the pixseek API.
type Server struct {
	manager  *index.Manager
	catalog  *catalog.Catalog
	pipeline *events.Pipeline
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	manager *index.Manager,
	cat *catalog.Catalog,
	pipeline *events.Pipeline,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		manager:  manager,
		catalog:  cat,
		pipeline: pipeline,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search/text", s.handleSearchText)
	r.Post("/api/v1/search/image", s.handleSearchImage)
	r.Post("/api/v1/items", s.handleCreateItem)
	r.Get("/api/v1/items/{id}", s.handleGetItem)
	r.Delete("/api/v1/items/{id}", s.handleDeleteItem)
	r.Patch("/api/v1/items/{id}/visibility", s.handleSetVisibility)
	r.Post("/api/v1/index/rebuild", s.handleRebuild)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
