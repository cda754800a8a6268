// Package http serves the read-only status surface: health, metrics, the
// latest consensus, live quotes and producer weights.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/infrastructure/cache"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns a local-only configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the collaborators the server reads from. Cache and Stream are
// optional; their endpoints degrade when absent.
type Deps struct {
	Insights persistence.InsightRepo
	Weights  persistence.WeightStore
	Cache    *cache.RedisCache
	Stream   *market.StreamClient
	Metrics  *MetricsRegistry
}

// Server is the read-only HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	deps    Deps
	config  ServerConfig
	started time.Time
}

// NewServer creates the server and verifies the port is free.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		config:  config,
		started: time.Now().UTC(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/insights/latest", s.handleLatestInsight).Methods("GET")
	api.HandleFunc("/quotes", s.handleQuotes).Methods("GET")
	api.HandleFunc("/weights", s.handleWeights).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(handleNotFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Health(r.Context()); err != nil {
			health["status"] = "degraded"
			health["cache"] = err.Error()
		} else {
			health["cache"] = "ok"
			health["cache_stats"] = s.deps.Cache.Stats()
		}
	}
	if s.deps.Stream != nil {
		health["stream_connected"] = s.deps.Stream.Connected()
	}

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleLatestInsight prefers the cache; on a miss it falls back to the
// insight store.
func (s *Server) handleLatestInsight(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache != nil {
		if insight, err := s.deps.Cache.Latest(r.Context()); err == nil && insight != nil {
			writeJSON(w, http.StatusOK, insight)
			return
		}
	}
	if s.deps.Insights == nil {
		writeError(w, http.StatusNotFound, "no insight available")
		return
	}
	insight, err := s.deps.Insights.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "insight lookup failed")
		return
	}
	if insight == nil {
		writeError(w, http.StatusNotFound, "no runs completed yet")
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stream == nil {
		writeError(w, http.StatusNotFound, "quote stream not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": s.deps.Stream.Connected(),
		"quotes":    s.deps.Stream.Snapshot(),
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if s.deps.Weights == nil {
		writeError(w, http.StatusNotFound, "weight store not configured")
		return
	}
	weights, err := s.deps.Weights.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "weight lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, weights)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "http").Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// requestLoggingMiddleware logs every request with timing.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().Str("component", "http").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request served")
	})
}

// timeoutMiddleware enforces a per-request deadline.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows localhost origins only.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start serves until the listener closes.
func (s *Server) Start() error {
	log.Info().Str("component", "http").
		Str("addr", s.server.Addr).
		Msg("HTTP server starting (local-only, read-only)")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Str("component", "http").Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Address returns the bound address.
func (s *Server) Address() string {
	return s.server.Addr
}

// responseWrapper captures status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
