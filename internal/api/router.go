// Package api exposes the enrichment module over HTTP, following the
// misp-modules server layout: /modules lists the module, /query runs it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/api/gateway"
	"github.com/lvonguyen/nsxenrich/internal/module"
	"github.com/lvonguyen/nsxenrich/internal/observability"
)

// Options wires the router. Module and Logger are required.
type Options struct {
	Module  *module.Module
	Logger  *zap.Logger
	Version string

	// Metrics records request counters. Optional.
	Metrics *observability.Metrics
	// MetricsHandler is mounted at MetricsPath when both are set.
	MetricsHandler http.Handler
	MetricsPath    string

	// Limiter throttles /query. Optional.
	Limiter *gateway.RateLimiter

	// MaxBodyBytes caps query bodies. Zero means 64 MiB.
	MaxBodyBytes int64

	// TrustProxyHeaders rewrites RemoteAddr from forwarding headers.
	TrustProxyHeaders bool

	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error
}

type server struct {
	opts Options
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	s := &server{opts: opts}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/modules", s.handleModules)

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.Post("/query", s.handleQuery)
	})

	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, opts.MetricsHandler)
	}

	return r
}

// Health and readiness handlers

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.opts.Version,
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Module handlers

type moduleEntry struct {
	Name           string                   `json:"name"`
	Type           string                   `json:"type"`
	MISPAttributes module.IntrospectionInfo `json:"mispattributes"`
	Meta           module.Info              `json:"meta"`
}

func (s *server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []moduleEntry{{
		Name:           module.Name,
		Type:           module.ModuleTypes[0],
		MISPAttributes: module.Introspection(),
		Meta:           module.VersionInfo(),
	}})
}

// handleQuery always answers 200 with either results or an error, which is
// what MISP expects from an expansion module. Only transport problems get
// other status codes.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "query exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read query"})
		return
	}

	resp := s.opts.Module.Handle(r.Context(), body)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request with zap and records request metrics
// under the matched route pattern.
func requestLogger(logger *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)

			if metrics != nil {
				metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			}

			logger.Info("HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
