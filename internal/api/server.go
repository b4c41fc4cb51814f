package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/essayist/internal/config"
	"github.com/dgallion1/essayist/internal/essay"
	"github.com/dgallion1/essayist/internal/source"
	"github.com/dgallion1/essayist/internal/stats"
)

// Server is the HTTP API server for essayist.
type Server struct {
	router      chi.Router
	transformer *essay.Transformer
	source      source.Source
	stats       *stats.Tracker
	log         *slog.Logger
	cfg         config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(tr *essay.Transformer, src source.Source, tracker *stats.Tracker, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		transformer: tr,
		source:      src,
		stats:       tracker,
		log:         log,
		cfg:         cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/essay/{acct}/{repo}/*", s.handleEssay)
	r.Get("/essay/{acct}/{repo}", s.handleEssay)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/runs/{runID}", s.handleRun)
	r.Post("/api/transform", s.handleTransform)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
