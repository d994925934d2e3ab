// Package server exposes the repository, targeted scans and the offline
// manifest parser over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/filter"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/manifest"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
	"github.com/pfrederiksen/ace-monitor/internal/monitor"
	"github.com/pfrederiksen/ace-monitor/internal/report"
	"github.com/pfrederiksen/ace-monitor/internal/scraper"
	"github.com/pfrederiksen/ace-monitor/internal/store"
)

const (
	maxManifestBody = 4 << 20
	requestTimeout  = 2 * time.Minute
)

// Scanner runs a targeted scan of one listing URL
type Scanner interface {
	ScanListing(ctx context.Context, pageURL string, opts monitor.ScanOptions) (*monitor.ScanResult, error)
}

// Server serves the HTTP surface
type Server struct {
	cfg     config.ServerConfig
	repo    *store.Repository
	scanner Scanner
	metrics *metrics.Metrics
	loc     *time.Location
	reveal  bool
}

// New creates a Server. scanner may be nil, which disables /debug-scan.
func New(cfg config.Config, repo *store.Repository, scanner Scanner, m *metrics.Metrics) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg.Server,
		repo:    repo,
		scanner: scanner,
		metrics: m,
		loc:     loc,
		reveal:  cfg.Reveal.Enabled,
	}, nil
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleDashboard)
	r.Get("/report.json", s.handleReport)
	r.Get("/epg.xml", s.handleEPG)
	r.Get("/healthz", s.handleHealth)
	r.Get("/debug-scan", s.handleDebugScan)
	r.Post("/parse-m3u8", s.handleParseManifest)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.Fields{"addr": s.cfg.Addr})
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("http server shutting down", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := report.WriteDashboard(w, report.Dashboard{
		LastRunUTC: report.HealthOf(s.repo).LastRunUTC,
		Events:     s.repo.ListAll(),
		Location:   s.loc,
	})
	if err != nil {
		logger.Error("rendering dashboard", nil, err)
	}
}

// handleReport serves the repository as JSON.
// Query params: status, league, title, within
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	f, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report.Build(s.repo, f))
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if err := report.WriteXMLTV(w, s.repo.ListAll(), s.loc); err != nil {
		logger.Error("rendering xmltv", nil, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, report.HealthOf(s.repo))
}

// handleDebugScan scans one listing URL without touching the repository.
// Query params: url (required), reveal (default true when reveal is enabled)
func (s *Server) handleDebugScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		respondError(w, http.StatusServiceUnavailable, "scanning is not configured")
		return
	}

	target := strings.TrimSpace(r.URL.Query().Get("url"))
	u, err := url.Parse(target)
	if target == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	opts := monitor.ScanOptions{Reveal: s.reveal}
	if v := r.URL.Query().Get("reveal"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid reveal %q", v))
			return
		}
		opts.Reveal = b && s.reveal
	}

	res, err := s.scanner.ScanListing(r.Context(), target, opts)
	if err != nil {
		status := http.StatusBadGateway
		var fe *scraper.FetchError
		if !errors.As(err, &fe) {
			status = http.StatusInternalServerError
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"found":    len(res.Events),
		"page":     res.Page,
		"evidence": res.Evidence,
		"items":    res.Events,
	})
}

type parseManifestRequest struct {
	Text    string `json:"m3u8_text"`
	BaseURL string `json:"base_url"`
}

func (s *Server) handleParseManifest(w http.ResponseWriter, r *http.Request) {
	var req parseManifestRequest
	body := io.LimitReader(r.Body, maxManifestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var base *url.URL
	if req.BaseURL != "" {
		u, err := url.Parse(req.BaseURL)
		if err != nil || !u.IsAbs() {
			respondError(w, http.StatusBadRequest, "base_url must be an absolute URL")
			return
		}
		base = u
	}

	respondJSON(w, http.StatusOK, manifest.Parse(req.Text, base))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := report.WriteJSON(w, v); err != nil {
		logger.Error("encoding response", nil, err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
