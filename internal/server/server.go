// Package server exposes the exporter's two read-only HTTP endpoints:
// /metrics, rendering the registry's exposition text, and /health,
// reporting per-router and overall fleet status as JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Registry is the subset of *registry.Registry the server depends on.
type Registry interface {
	Render(acceptHeader string) (contentType string, body []byte, err error)
}

// RouterHealth mirrors scheduler.RouterHealth without importing the
// scheduler package, keeping server decoupled from collection internals.
type RouterHealth struct {
	Name                string
	Status              string
	ConsecutiveErrors   int
	HasSuccessfulScrape bool
}

// HealthSource supplies the current per-router health view.
type HealthSource interface {
	Health() []RouterHealth
}

// Options configures the HTTP server.
type Options struct {
	ListenAddress string
	MetricsPath   string
	HealthPath    string
	Version       string
	ScrapeTimeout time.Duration
}

// Server wraps an http.Server routed with gorilla/mux.
type Server struct {
	httpServer    *http.Server
	registry      Registry
	health        HealthSource
	logger        *slog.Logger
	version       string
	scrapeTimeout time.Duration
}

// New constructs a Server serving opts.MetricsPath from registry and
// opts.HealthPath from health.
func New(opts Options, registry Registry, health HealthSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	s := &Server{
		registry:      registry,
		health:        health,
		logger:        logger,
		version:       opts.Version,
		scrapeTimeout: opts.ScrapeTimeout,
	}

	router := mux.NewRouter()
	router.HandleFunc(metricsPath, s.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              opts.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server; it returns nil on a graceful
// Shutdown rather than propagating http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type renderResult struct {
	contentType string
	body        []byte
	err         error
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")

	if s.scrapeTimeout <= 0 {
		s.writeRender(w, s.registry.Render(accept))
		return
	}

	resultCh := make(chan renderResult, 1)
	go func() {
		contentType, body, err := s.registry.Render(accept)
		resultCh <- renderResult{contentType: contentType, body: body, err: err}
	}()

	select {
	case result := <-resultCh:
		s.writeRender(w, result.contentType, result.body, result.err)
	case <-time.After(s.scrapeTimeout):
		s.logger.Warn("metrics render timed out", "timeout", s.scrapeTimeout)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = w.Write([]byte("metrics render timed out"))
	}
}

func (s *Server) writeRender(w http.ResponseWriter, contentType string, body []byte, err error) {
	if err != nil {
		s.logger.Error("metrics render failed", "err", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type healthRouter struct {
	Name                string `json:"name"`
	Status              string `json:"status"`
	ConsecutiveErrors   int    `json:"consecutive_errors"`
	HasSuccessfulScrape bool   `json:"has_successful_scrape"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Routers []healthRouter `json:"routers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	routers := s.health.Health()

	resp := healthResponse{
		Status:  "healthy",
		Version: s.version,
		Routers: make([]healthRouter, 0, len(routers)),
	}
	for _, r := range routers {
		if r.Status == "degraded" {
			resp.Status = "degraded"
		}
		resp.Routers = append(resp.Routers, healthRouter{
			Name:                r.Name,
			Status:              r.Status,
			ConsecutiveErrors:   r.ConsecutiveErrors,
			HasSuccessfulScrape: r.HasSuccessfulScrape,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
