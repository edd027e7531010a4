// Package server exposes scan results over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
)

// Runner triggers scans and returns the most recent one.
type Runner interface {
	Run(ctx context.Context) (*model.ScanRun, error)
	Latest() *model.ScanRun
}

// Config holds server configuration
type Config struct {
	Addr      string
	Log       zerolog.Logger
	Runner    Runner
	History   recorder.History      // optional
	Patterns  recorder.PatternQuery // optional
	ChartsDir string                // served under /charts/ when set
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	runner   Runner
	history  recorder.History
	patterns recorder.PatternQuery
	charts   string
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		runner:   cfg.Runner,
		history:  cfg.History,
		patterns: cfg.Patterns,
		charts:   cfg.ChartsDir,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/scan blocks for a whole run
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleRuns)
			r.Get("/latest", s.handleLatest)
			r.Get("/{id}/patterns", s.handleRunPatterns)
		})
		r.Get("/patterns", s.handlePatterns)
		r.Post("/scan", s.handleScan)
	})

	if s.charts != "" {
		s.router.Handle("/charts/*", http.StripPrefix("/charts/", http.FileServer(http.Dir(s.charts))))
	}
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{"status": "ok", "time": time.Now().UTC()}
	if run := s.runner.Latest(); run != nil {
		resp["last_run"] = run.FinishedAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	run := s.runner.Latest()
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no scan has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotImplemented, "run history is not recorded")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.history.RecentRuns(r.Context(), limit)
	if errors.Is(err, recorder.ErrNotRecorded) {
		s.writeError(w, http.StatusNotImplemented, "run history is not recorded")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load run history")
		s.writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}
	if runs == nil {
		runs = []recorder.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunPatterns(w http.ResponseWriter, r *http.Request) {
	if s.patterns == nil {
		s.writeError(w, http.StatusNotImplemented, "pattern records are not stored")
		return
	}
	id := chi.URLParam(r, "id")
	out, err := s.patterns.Patterns(r.Context(), id, r.URL.Query().Get("symbol"))
	if errors.Is(err, recorder.ErrNotRecorded) {
		s.writeError(w, http.StatusNotImplemented, "pattern records are not stored")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to load patterns")
		s.writeError(w, http.StatusInternalServerError, "failed to load patterns")
		return
	}
	if out == nil {
		out = []model.ScoredPattern{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handlePatterns filters the latest run by ?symbol= and ?valid=.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	run := s.runner.Latest()
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no scan has completed yet")
		return
	}
	q := r.URL.Query()
	symbol := strings.ToUpper(q.Get("symbol"))
	var valid *bool
	if v := q.Get("valid"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "valid must be a boolean")
			return
		}
		valid = &b
	}

	out := []model.ScoredPattern{}
	for _, res := range run.Results {
		if symbol != "" && strings.ToUpper(res.Symbol) != symbol {
			continue
		}
		for _, p := range res.Patterns {
			if valid != nil && p.Valid != *valid {
				continue
			}
			out = append(out, p)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Run(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Manual scan failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, recorder.Summarize(run))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{"error": message})
}
