// Package server exposes the storage engine over HTTP: a REST surface for
// database management and JSON path operations, plus a server-sent-events
// endpoint streaming change records to subscribers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/firegres/firegres/internal/storage"
)

// Server handles HTTP requests against a storage backend.
type Server struct {
	store      storage.Storage
	router     chi.Router
	httpServer *http.Server

	// heartbeatInterval is the gap between SSE keep-alive comments.
	// Overridable in tests.
	heartbeatInterval time.Duration
}

// New creates a server over store and registers all routes.
func New(store storage.Storage) *Server {
	s := &Server{
		store:             store,
		heartbeatInterval: 30 * time.Second,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "PATCH", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/createdb", s.handleCreateDB)
	r.Delete("/deletedb", s.handleDeleteDB)

	// {path} is the remainder after the database name and may be absent.
	for _, pattern := range []string{"/database/{ldb:[a-z0-9_-]+}", "/database/{ldb:[a-z0-9_-]+}/*"} {
		r.Get(pattern, s.handleGet)
		r.Put(pattern, s.handlePut)
		r.Patch(pattern, s.handlePatch)
		r.Post(pattern, s.handlePost)
		r.Delete(pattern, s.handleDelete)
	}
	r.Get("/database_events/{ldb:[a-z0-9_-]+}", s.handleEvents)
	r.Get("/database_events/{ldb:[a-z0-9_-]+}/*", s.handleEvents)

	s.router = r
	return s
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server on the given address and blocks until it
// stops. WriteTimeout is left unset so SSE streams stay open.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
