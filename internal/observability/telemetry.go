// Package observability wires structured logging, Prometheus metrics and
// OpenTelemetry tracing for the enrichment service.
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config configures telemetry
type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	// ModuleName and ModuleVersion identify the misp-modules module served.
	ModuleName    string `yaml:"-"`
	ModuleVersion string `yaml:"-"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, console

	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Telemetry owns the process logger, the workflow tracer and the metrics
// registry.
type Telemetry struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	registry *prometheus.Registry

	closeOnce sync.Once
	closers   []func(context.Context) error
}

// New sets up telemetry. A tracing exporter that cannot be created is logged
// and tracing falls back to the global no-op provider.
func New(cfg Config) (*Telemetry, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	t := &Telemetry{logger: logger}

	if cfg.TracingEnabled {
		tp, err := newTracerProvider(context.Background(), cfg)
		if err != nil {
			logger.Warn("Tracing disabled", zap.Error(err))
		} else {
			t.closers = append(t.closers, tp.Shutdown)
		}
	}
	t.tracer = otel.Tracer(WorkflowTracer, trace.WithInstrumentationVersion(cfg.ModuleVersion))

	if cfg.MetricsEnabled {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		t.metrics = NewMetrics(t.registry)
	}

	return t, nil
}

// Logger returns the process logger.
func (t *Telemetry) Logger() *zap.Logger {
	return t.logger
}

// Tracer returns the tracer for enrichment workflow spans.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Metrics returns the metrics, or nil when metrics are disabled.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// MetricsHandler serves the registry, or 404 when metrics are disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Shutdown flushes pending spans and the logger. Only the first call does
// anything.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	t.closeOnce.Do(func() {
		for _, closeFn := range t.closers {
			errs = append(errs, closeFn(ctx))
		}
		_ = t.logger.Sync()
	})
	return errors.Join(errs...)
}
