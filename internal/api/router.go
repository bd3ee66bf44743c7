package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"admintask/internal/core"
	"admintask/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer   *http.Server
	router       *chi.Mux
	store        *store.Store
	scheduler    *core.Scheduler
	runner       *core.TaskRunner
	registry     *core.Registry
	logger       *slog.Logger
	authToken    string
	invokeSecret string
}

// NewServer constructs the HTTP API server.
func NewServer(addr, authToken, invokeSecret string, store *store.Store, scheduler *core.Scheduler, runner *core.TaskRunner, registry *core.Registry, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:       router,
		store:        store,
		scheduler:    scheduler,
		runner:       runner,
		registry:     registry,
		logger:       logger,
		authToken:    authToken,
		invokeSecret: invokeSecret,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		// The invoke endpoint authenticates via the shared secret in its
		// body, so it sits outside the bearer-token guard.
		r.Post("/invoke", s.handleInvoke)

		r.Group(func(r chi.Router) {
			if s.authToken != "" {
				r.Use(AuthMiddleware(s.authToken))
			}

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Post("/", s.handleScheduleTask)

				r.Route("/{taskID}", func(r chi.Router) {
					r.Get("/", s.handleGetTask)
					r.Post("/rerun", s.handleRerunTask)
				})
			})
		})
	})
}
