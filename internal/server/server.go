// Package server provides the HTTP host for glowlens: the session API, live
// preview streams and session event websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/logger"
	"github.com/ayusman/glowlens/internal/server/api"
	"github.com/ayusman/glowlens/internal/session"
	"github.com/ayusman/glowlens/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Catalog   *catalog.Catalog
	// Sessions maps a subject kind ("face", "hand") to its session.
	Sessions  map[string]*session.Session
	StreamFPS int
	Logger    logrus.FieldLogger
}

// Server represents the HTTP server for glowlens.
type Server struct {
	config Config
	router *chi.Mux
	log    logrus.FieldLogger
	start  time.Time

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		log:    logger.OrDiscard(config.Logger).WithField("component", "server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// Session implements api.Sessions.
func (s *Server) Session(kind string) (*session.Session, bool) {
	sess, ok := s.config.Sessions[kind]
	return sess, ok && sess != nil
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	if s.config.Catalog != nil {
		catalogHandler := api.NewCatalogHandler(s.config.Catalog)
		r.Get("/api/palettes", catalogHandler.Palettes)
	}

	if s.config.Store != nil {
		snapshots := api.NewSnapshotHandler(s.config.Store)
		r.Get("/api/snapshots/{kind}", snapshots.Get)
		r.Delete("/api/snapshots/{kind}", snapshots.Delete)
		r.Get("/api/exports", snapshots.Exports)
	}

	if len(s.config.Sessions) > 0 {
		sessions := api.NewSessionHandler(s, s.log)
		stream := NewStreamHandler(sessions, s.config.StreamFPS)
		events := NewEventsHandler(sessions, s.log)

		r.Route("/api/sessions/{kind}", func(r chi.Router) {
			r.Get("/", sessions.Status)
			r.Post("/start", sessions.Start)
			r.Post("/stop", sessions.Stop)
			r.Post("/capture", sessions.Capture)
			r.Post("/reset", sessions.Reset)
			r.Post("/acknowledge", sessions.Acknowledge)
			r.Post("/save", sessions.Save)
			r.Get("/result", sessions.Result)
			r.Get("/export", sessions.Export)
			r.Get("/stream", stream.ServeHTTP)
			r.Get("/events", events.ServeHTTP)
		})
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions := make(map[string]string, len(s.config.Sessions))
	for kind, sess := range s.config.Sessions {
		sessions[kind] = sess.State().String()
	}

	response := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"sessions": sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on addr and blocks until Shutdown.
// It returns nil at once if Shutdown was already called.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	hs := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.httpServer = hs
	s.mu.Unlock()

	s.log.WithField("addr", addr).Info("listening")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	hs := s.httpServer
	s.mu.Unlock()

	if hs == nil {
		return nil
	}
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// requestLogger logs each request at debug level with logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": chiMiddleware.GetReqID(r.Context()),
			}).Debug("request")
		})
	}
}
