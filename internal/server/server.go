// Package server exposes a Storage over HTTP for the tuastoraged daemon.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wjtools/tua-storage/internal/logger"
	"github.com/wjtools/tua-storage/internal/provider"
	"github.com/wjtools/tua-storage/internal/storage"
)

const (
	// maxRequestSize is the maximum request body size (10MB).
	maxRequestSize = 10 * 1024 * 1024
	// requestTimeout bounds every request, including sync calls to the origin.
	requestTimeout = 30 * time.Second
	// headerRequestID carries the request ID in both directions.
	headerRequestID = "X-Request-ID"
	// serviceName names the server spans.
	serviceName = "tuastoraged"
)

// Server is the HTTP server for the storage daemon.
type Server struct {
	storage *storage.Storage
	origin  provider.Provider
	stats   Stats
	logger  *slog.Logger
	version string
}

// Stats reports the current value of the storage counters.
type Stats interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// errorResponse is the error response body.
type errorResponse struct {
	// Error is the error message.
	Error string `json:"error"`
}

// NewServer creates a new Server instance.
// origin may be nil, in which case sync loads are rejected.
// stats may be nil, in which case GET /v1/stats answers 501.
func NewServer(
	store *storage.Storage,
	origin provider.Provider,
	stats Stats,
	logger *slog.Logger,
	version string,
) *Server {
	return &Server{
		storage: store,
		origin:  origin,
		stats:   stats,
		logger:  logger,
		version: version,
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/load", s.handleLoad)
		r.Post("/save", s.handleSave)
		r.Post("/remove", s.handleRemove)
		r.Post("/clear", s.handleClear)
		r.Get("/keys", s.handleKeys)
		r.Get("/stats", s.handleStats)
	})

	return otelhttp.NewHandler(r, serviceName)
}

// requestID takes X-Request-ID from the request or generates one, stores it
// in the context and echoes it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "OK",
		"version": s.version,
	})
}

// writeJSON writes body as a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	s.writeJSON(w, r, statusCode, errorResponse{Error: message})
}
