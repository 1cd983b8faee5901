package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// Version is reported by /v1/status
var Version = "dev"

// Server represents the meteor daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	registry *content.Registry
	sessions session.SessionService
	grader   grader.CodeGrader
	runner   *runner.Service // optional, nil in queue dispatch mode
	limiter  ratelimit.RateLimiter
	started  time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config   *config.LocalConfig
	Registry *content.Registry
	Sessions session.SessionService
	Grader   grader.CodeGrader
	Runner   *runner.Service
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil || cfg.Registry == nil || cfg.Sessions == nil || cfg.Grader == nil {
		return nil, errors.New("daemon: config, registry, sessions and grader are required")
	}
	s := &Server{
		cfg:      cfg.Config,
		router:   http.NewServeMux(),
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		grader:   cfg.Grader,
		runner:   cfg.Runner,
		started:  time.Now(),
	}

	if rl := cfg.Config.RateLimit; rl.AnswersPerMinute > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rl.AnswersPerMinute,
			Burst:    burst,
			Interval: time.Minute,
		})
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Lessons
	s.router.HandleFunc("GET /v1/lessons", s.handleListLessons)
	s.router.HandleFunc("GET /v1/lessons/{id}", s.handleGetLesson)

	// Sessions
	s.router.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.router.HandleFunc("GET /v1/sessions", s.handleListSessions)
	s.router.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.router.HandleFunc("DELETE /v1/sessions/{id}", s.handleQuitSession)
	s.router.HandleFunc("GET /v1/sessions/{id}/attempts", s.handleListAttempts)
	s.router.HandleFunc("POST /v1/sessions/{id}/answer", s.handleAnswer)
	s.router.HandleFunc("POST /v1/sessions/{id}/hint", s.handleHint)

	// Stateless grading for content authors
	s.router.HandleFunc("POST /v1/grade", s.handleGrade)

	// Code playground
	s.router.HandleFunc("POST /v1/run", s.handleRun)
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting meteor daemon",
		"addr", s.server.Addr,
		"lessons", s.registry.Count(),
		"executor", s.cfg.Runner.Executor,
		"dispatch", s.cfg.Grading.Dispatch,
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones. Grading
// still running afterwards gets until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	err := s.server.Shutdown(ctx)
	if s.runner != nil {
		if werr := s.runner.Wait(ctx); werr != nil {
			slog.Warn("executions still running at shutdown", "count", s.runner.Running())
		}
	}
	return err
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// sessionError maps session and content errors onto HTTP statuses
func (s *Server) sessionError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.jsonError(w, http.StatusNotFound, "session not found", nil)
	case errors.Is(err, domain.ErrLessonNotFound):
		s.jsonError(w, http.StatusNotFound, "lesson not found", err)
	case errors.Is(err, domain.ErrItemNotFound):
		s.jsonError(w, http.StatusNotFound, "item not found", err)
	case errors.Is(err, session.ErrGradingInProgress):
		s.jsonError(w, http.StatusConflict, "an answer is already being graded", nil)
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, session.ErrNotAwaitingAnswer):
		s.jsonError(w, http.StatusConflict, "session is not accepting answers", err)
	case errors.Is(err, domain.ErrInvalidInput):
		s.jsonError(w, http.StatusBadRequest, "invalid input", err)
	default:
		s.jsonError(w, http.StatusInternalServerError, fallback, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// maxBodyBytes caps request bodies; submissions are small source files.
const maxBodyBytes = 256 << 10
