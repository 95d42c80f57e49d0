// Package server provides the HTTP API for Miru.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/config"
	"github.com/mirusearch/miru/internal/keyword"
	"github.com/mirusearch/miru/internal/search"
)

// Server is the HTTP server for the Miru API.
type Server struct {
	service  *search.Service
	captions keyword.CaptionIndex
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. captions may be nil
// when no caption index is configured; the caption endpoint then returns 501.
func NewServer(
	service *search.Service,
	captions keyword.CaptionIndex,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		service:  service,
		captions: captions,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/search-by-image", s.handleSearchByImage)
	r.Post("/api/v1/feedback", s.handleFeedback)
	r.Get("/api/v1/history/{userID}", s.handleHistory)
	r.Get("/api/v1/analytics", s.handleAnalytics)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/captions/search", s.handleCaptionSearch)
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

// logRequests logs each request with method, path, status, and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
