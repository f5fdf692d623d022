package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"missingrecord/internal/metrics"
	"missingrecord/internal/models"
	"missingrecord/internal/storage"
)

// Server wraps HTTP serving of the run history API.
type Server struct {
	httpServer   *http.Server
	storage      *storage.RunStorage
	collectors   *metrics.Collectors
	refresh      time.Duration
	historyLimit int
}

// New creates a configured HTTP server over the run history. refresh controls
// how often the history file is reread and live clients are updated.
func New(addr string, store *storage.RunStorage, collectors *metrics.Collectors, refresh time.Duration) *Server {
	if refresh <= 0 {
		refresh = time.Minute
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		storage:      store,
		collectors:   collectors,
		refresh:      refresh,
		historyLimit: 200,
	}
	s.registerRoutes(mux)
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run reloads history periodically and blocks serving HTTP traffic until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.Refresh()
	go func() {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Refresh rereads the run history and republishes the latest summaries.
func (s *Server) Refresh() {
	if err := s.storage.Reload(); err != nil {
		log.Warn().Err(err).Msg("failed to reload run history")
		return
	}
	if s.collectors == nil {
		return
	}
	if latest, ok := s.storage.Latest(); ok {
		s.collectors.ObserveSummaries(latest.Summaries, latest.GeneratedAt)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/latest", s.handleLatest)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/live", s.handleLive)
	if s.collectors != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.collectors.Registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.historyLimit)
	writeJSON(w, http.StatusOK, s.storage.HistoryN(limit))
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.storage.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildSummary())
}

type summaryPayload struct {
	RunID       *string          `json:"run_id"`
	Window      *models.Window   `json:"window,omitempty"`
	GeneratedAt *time.Time       `json:"generated_at"`
	Summaries   []models.Summary `json:"summaries"`
}

func (s *Server) buildSummary() summaryPayload {
	run, ok := s.storage.Latest()
	if !ok {
		return summaryPayload{Summaries: []models.Summary{}}
	}
	return summaryPayload{
		RunID:       &run.ID,
		Window:      &run.Window,
		GeneratedAt: &run.GeneratedAt,
		Summaries:   run.Summaries,
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 || value > fallback {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
