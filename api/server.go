// Package api provides the HTTP REST API server for dealflow.
//
// It exposes endpoints for listing collection, property analysis, stored
// results and exports, the reference rent table, the collection scheduler
// and WebSocket streaming of progress events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/app"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/scheduler"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/web"
)

// Version is reported by /health.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	app     *app.App
	logger  *slog.Logger
	wsHub   *WSHub
	started time.Time
}

// NewServer creates a configured API server with all routes and middleware.
// Collector events are forwarded to WebSocket clients.
func NewServer(a *app.App) *Server {
	srv := &Server{
		app:     a,
		logger:  a.Logger,
		wsHub:   NewWSHub(a.Logger),
		started: time.Now(),
	}
	a.Events.Subscribe(func(ev collector.Event) {
		srv.wsHub.Broadcast(WSMessage{Type: ev.Type, Data: ev})
	})
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server with graceful shutdown. It returns
// when ctx is cancelled or the process receives SIGINT/SIGTERM.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if cfg := s.app.Config(); len(cfg.API.CORSOrigins) > 0 {
		origins = cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Configuration
		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.handleGetConfig)
			r.Get("/keys", s.handleGetConfigKeys)
			r.Put("/financial", s.handleUpdateFinancial)
			r.Put("/buybox", s.handleUpdateBuybox)
		})

		// Listings
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", s.handleGetProperties)
			r.Post("/fetch", s.handleFetchProperties)
			r.Post("/adhoc", s.handleAdhocFetch)
			r.Get("/zipcodes", s.handlePropertyZipCodes)
			r.Get("/dates/{zip}", s.handlePropertyDates)
			r.Get("/stats", s.handlePropertyStats)
			r.Get("/export/csv", s.handleExportPropertiesCSV)
			r.Post("/cleanup", s.handleCleanup)
		})

		// Analysis
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/property", s.handleAnalyzeProperty)
			r.Post("/batch", s.handleAnalyzeBatch)
			r.Post("/zipcode", s.handleAnalyzeZipCode)
			r.Get("/results", s.handleGetResults)
			r.Get("/batches/{id}", s.handleGetBatch)
			r.Get("/statistics", s.handleStatistics)
			r.Get("/export/csv", s.handleExportAnalysisCSV)
			r.Get("/columns", s.handleExportColumns)
			r.Post("/rental-stats", s.handleRentalStats)
		})

		// Reference rents
		r.Route("/reference", func(r chi.Router) {
			r.Get("/stats", s.handleReferenceStats)
			r.Get("/search", s.handleReferenceSearch)
			r.Post("/reload", s.handleReferenceReload)
		})

		// Scheduler
		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", s.handleSchedulerStatus)
			r.Post("/run", s.handleSchedulerRun)
			r.Post("/start", s.handleSchedulerStart)
			r.Post("/stop", s.handleSchedulerStop)
			r.Put("/config", s.handleSchedulerConfig)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	// Embedded dashboard
	if s.app.Config().API.ServeUI {
		s.mountDashboard(r, web.DashboardFS())
	}

	return r
}

// mountDashboard serves the embedded dashboard. Unknown paths outside
// /api fall back to index.html.
func (s *Server) mountDashboard(r chi.Router, dashFS fs.FS) {
	fileServer := http.FileServerFS(dashFS)

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rPath := strings.TrimPrefix(r.URL.Path, "/")
		if rPath == "" {
			rPath = "index.html"
		}
		if strings.HasPrefix(rPath, "api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		f, err := dashFS.Open(rPath)
		if err != nil {
			serveIndexHTML(w, dashFS)
			return
		}
		f.Close()

		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}

// serveIndexHTML writes the embedded index.html.
func serveIndexHTML(w http.ResponseWriter, dashFS fs.FS) {
	data, err := fs.ReadFile(dashFS, "index.html")
	if err != nil {
		http.Error(w, "dashboard not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	WSClients int    `json:"wsClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:    "ok",
			Version:   Version,
			Uptime:    time.Since(s.started).Round(time.Second).String(),
			WSClients: s.wsHub.ClientCount(),
		},
	})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeFailure maps err to a status code and writes it. data, when not nil,
// is returned alongside the error so partial results are not lost.
func writeFailure(w http.ResponseWriter, err error, data interface{}) {
	writeJSON(w, statusFor(err), APIResponse{Success: false, Data: data, Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datasource.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, reference.ErrDataNotFound):
		return http.StatusNotFound
	case collector.IsQuotaError(err):
		return http.StatusTooManyRequests
	case errors.Is(err, scheduler.ErrRunInProgress), errors.Is(err, scheduler.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, datasource.ErrUnauthorized):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched when optional is set.
func decodeBody(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return validationf("invalid JSON body: %v", err)
	}
	return nil
}

func validationf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return models.ErrValidation }

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, validationf("%s must be a number", name)
	}
	return &v, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, validationf("%s must be an integer", name)
	}
	return &v, nil
}

// queryList splits a comma separated parameter, also accepting repeats.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// financialOrDefault returns override with defaults applied, or the running
// financial configuration.
func (s *Server) financialOrDefault(override *models.FinancialConfig) models.FinancialConfig {
	if override != nil {
		return override.ApplyDefaults()
	}
	return s.app.Financial()
}
