package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/storage"
	"github.com/lamassu-labs/sentinel/internal/monitor/poller"
	"github.com/lamassu-labs/sentinel/internal/monitor/store"
)

const (
	refreshTimeout  = 30 * time.Second
	defaultHistoryH = 24
)

// HTTP serves the dashboard API and operational endpoints.
type HTTP struct {
	store   *store.Store
	poller  *poller.Poller
	archive storage.SnapshotArchive
	clock   clockwork.Clock
	refresh time.Duration
	log     *slog.Logger
	server  *http.Server
}

// NewHTTP creates the HTTP server on the given port.
func NewHTTP(port int, st *store.Store, p *poller.Poller, archive storage.SnapshotArchive, clock clockwork.Clock) *HTTP {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &HTTP{
		store:   st,
		poller:  p,
		archive: archive,
		clock:   clock,
		refresh: refreshTimeout,
		log:     slog.Default().With("component", "http"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the handler tree.
func (s *HTTP) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard", s.handleDashboard)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/programs/", s.handleProgramSubroutes)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return logMiddleware(mux, s.log)
}

// Start starts the HTTP server.
func (s *HTTP) Start() error {
	s.log.Info("HTTP server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *HTTP) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTP) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.store.Dashboard())
}

// handleRefresh forces a poll cycle outside the regular schedule. The
// response carries the resulting cycle info.
func (s *HTTP) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.refresh)
	defer cancel()

	info, err := s.poller.RunCycle(ctx)
	if err != nil {
		s.log.Warn("Forced refresh failed", "error", err)
		http.Error(w, "refresh did not complete in time", http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, info)
}

func (s *HTTP) handleProgramSubroutes(w http.ResponseWriter, r *http.Request) {
	// /api/programs/{id}/history
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "programs" && parts[3] == "history" {
		s.handleProgramHistory(w, r, domain.ProgramID(parts[2]))
		return
	}
	http.NotFound(w, r)
}

func (s *HTTP) handleProgramHistory(w http.ResponseWriter, r *http.Request, id domain.ProgramID) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.knownProgram(id) {
		http.Error(w, "unknown program", http.StatusNotFound)
		return
	}

	hours := defaultHistoryH
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	entries, err := s.archive.History(r.Context(), id, since)
	if err != nil {
		s.log.Error("History query failed", "program", id, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, historyResponse{
		ProgramID: id,
		Hours:     hours,
		Snapshots: entries,
	})
}

type historyResponse struct {
	ProgramID domain.ProgramID           `json:"program_id"`
	Hours     int                        `json:"hours"`
	Snapshots []storage.ArchivedSnapshot `json:"snapshots"`
}

// handleHealthz aggregates program health, worst case wins. Unhealthy
// or errored programs turn the probe red; degraded ones only change the
// reported status.
func (s *HTTP) handleHealthz(w http.ResponseWriter, r *http.Request) {
	dash := s.store.Dashboard()

	status := "healthy"
	code := http.StatusOK
	for _, snap := range dash.Programs {
		switch snap.Health {
		case domain.HealthUnhealthy, domain.HealthError:
			status = "critical"
			code = http.StatusServiceUnavailable
		case domain.HealthDegraded:
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *HTTP) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.store.Dashboard().Cycle.Sequence == 0 {
		http.Error(w, "first poll pending", http.StatusServiceUnavailable)
		return
	}
	if s.archive != nil {
		if err := s.archive.Health(r.Context()); err != nil {
			http.Error(w, "archive not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *HTTP) knownProgram(id domain.ProgramID) bool {
	for _, p := range s.store.Programs() {
		if p.ID == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
