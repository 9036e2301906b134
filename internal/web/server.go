// Package web serves the operator API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// Deps are the components exposed through the API. Only Gallery is
// required.
type Deps struct {
	Gallery    *gallery.Gallery
	Reload     handlers.ReloadFunc
	Pipeline   handlers.PipelineStats
	Dispatcher handlers.DispatcherStats
	MQTT       handlers.MQTTStats
	Recent     *dispatch.Recent
	Attendance database.AttendanceReader
	Logger     *slog.Logger
}

// Server represents the web server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer creates a new web server
func NewServer(cfg config.WebConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	s := &Server{
		router: r,
		log:    deps.Logger.With("component", "web"),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes(cfg, deps)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(cfg config.WebConfig, deps Deps) {
	statsHandler := handlers.NewStatsHandler()
	statsHandler.Pipeline = deps.Pipeline
	statsHandler.Dispatcher = deps.Dispatcher
	statsHandler.MQTT = deps.MQTT
	statsHandler.Gallery = deps.Gallery

	galleryHandler := handlers.NewGalleryHandler(deps.Gallery, deps.Reload, s.log)
	eventsHandler := handlers.NewEventsHandler(deps.Recent)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Attendance, s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/stats", statsHandler.Get)
		r.Get("/gallery", galleryHandler.Get)
		r.Get("/events", eventsHandler.List)
		r.Get("/attendance", attendanceHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(cfg.APIToken))
			r.Post("/gallery/reload", galleryHandler.Reload)
		})
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
