package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_MetricsEnabled(t *testing.T) {
	tel, err := New(Config{
		ServiceName:    "nsxenrich-test",
		ServiceVersion: "test",
		LogLevel:       "debug",
		MetricsEnabled: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if tel.Logger() == nil || tel.Tracer() == nil {
		t.Fatal("logger and tracer must be set")
	}
	if tel.Metrics() == nil {
		t.Fatal("metrics should be enabled")
	}

	tel.Metrics().EnrichmentRequests.WithLabelValues("md5", "full").Inc()

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `nsxenrich_enrichment_requests_total{attribute_type="md5",outcome="full"} 1`) {
		t.Errorf("expected enrichment counter in output, got:\n%s", body)
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	tel, err := New(Config{ServiceName: "nsxenrich-test", LogFormat: "console"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if tel.Metrics() != nil {
		t.Error("metrics should be nil when disabled")
	}

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", rec.Code)
	}
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Two registries must not collide on registration.
	regA, regB := prometheus.NewRegistry(), prometheus.NewRegistry()
	a := NewMetrics(regA)
	NewMetrics(regB)

	a.MITREMappings.Add(3)

	if got := counterValue(t, regA, "nsxenrich_mitre_mappings_total"); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
	if got := counterValue(t, regB, "nsxenrich_mitre_mappings_total"); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

// =============================================================================
// Tracing Tests
// =============================================================================

func TestRecordError_MarksSpanAndLogsTraceID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	core, logs := observer.New(zap.ErrorLevel)

	_, span := tp.Tracer(WorkflowTracer).Start(context.Background(), "workflow.Enrich")
	RecordError(span, zap.New(core), "Enrichment failed", errors.New("boom"), zap.String("attribute_type", "md5"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected one span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status())
	}
	if len(ended[0].Events()) != 1 || ended[0].Events()[0].Name != "exception" {
		t.Errorf("expected an exception event, got %v", ended[0].Events())
	}

	entries := logs.FilterMessage("Enrichment failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), fields["trace_id"])
	}
	if fields["attribute_type"] != "md5" || fields["error"] != "boom" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestRecordError_WithoutLogger(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer(WorkflowTracer).Start(context.Background(), "workflow.Resolve")
	RecordError(span, nil, "", errors.New("unreachable"))
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Error {
		t.Errorf("expected error status, got %v", got)
	}
}

func TestModuleResource(t *testing.T) {
	res, err := moduleResource(Config{
		ServiceName:    "nsxenrich",
		ServiceVersion: "1.2.3",
		Environment:    "test",
		ModuleName:     "vmware_nsx",
		ModuleVersion:  "0.2",
	})
	if err != nil {
		t.Fatalf("moduleResource failed: %v", err)
	}

	want := map[attribute.Key]string{
		"service.name":           "nsxenrich",
		"service.version":        "1.2.3",
		"deployment.environment": "test",
		"misp.module.name":       "vmware_nsx",
		"misp.module.version":    "0.2",
	}
	set := res.Set()
	for key, value := range want {
		got, ok := set.Value(key)
		if !ok || got.AsString() != value {
			t.Errorf("expected %s=%q, got %q", key, value, got.AsString())
		}
	}
}
