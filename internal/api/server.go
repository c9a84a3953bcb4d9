package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/reflinker/internal/config"
	"github.com/dgallion1/reflinker/internal/linker"
	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/dgallion1/reflinker/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Linker links parsed pages and serves reference display data.
type Linker interface {
	Link(ctx context.Context, page *linker.Page, opts linker.Options) (*linker.Result, error)
	RefData(ctx context.Context, refs []string) (map[string]matcher.RefData, error)
}

// Reporter forwards bad-match reports to the matcher.
type Reporter interface {
	Report(ctx context.Context, req matcher.ReportRequest) error
}

// Jobs is the async link job queue.
type Jobs interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

type Deps struct {
	Linker   Linker
	Reporter Reporter
	Jobs     Jobs
	Stats    *matcher.LatencyStats
}

// Server is the HTTP API server for reflinker.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
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

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.LinkerAPIKey, s.log))

		r.Post("/api/link", s.handleLink)
		r.Post("/api/link/upload", s.handleUpload)
		r.Post("/api/link/jobs", s.handleSubmitJob)
		r.Get("/api/link/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/popup", s.handlePopup)
		r.Post("/api/report", s.handleReport)

		r.Get("/api/stats/matcher", s.handleMatcherStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if s.deps.Jobs != nil {
		depth = s.deps.Jobs.QueueDepth()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue_depth": depth})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
