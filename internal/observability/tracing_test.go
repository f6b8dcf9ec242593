// ABOUTME: Tests for OpenTelemetry tracing setup
// ABOUTME: Validates disabled provider, run ID tagging, samplers, and ID extraction

package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	t.Parallel()

	tp, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	if tp.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSpanIDs(t *testing.T) {
	t.Parallel()

	if traceID, spanID := SpanIDs(context.Background()); traceID != "" || spanID != "" {
		t.Errorf("SpanIDs() = %q, %q, want empty", traceID, spanID)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer provider.Shutdown(context.Background())

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	traceID, spanID := SpanIDs(ctx)
	if len(traceID) != 32 {
		t.Errorf("traceID = %q, want 32 hex chars", traceID)
	}
	if len(spanID) != 16 {
		t.Errorf("spanID = %q, want 16 hex chars", spanID)
	}
}

func TestSamplerFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{0.5, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("samplerFor(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}

// Installs a global provider, so not parallel.
func TestStartSpan_TagsRunID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	ctx := WithRunID(context.Background(), RunID("run-1"))
	_, span := StartSpan(ctx, "cache.GetOrRefresh")
	EndSpan(span, errors.New("offline"))

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	got := ended[0]

	var runID string
	for _, kv := range got.Attributes() {
		if kv.Key == RunIDKey {
			runID = kv.Value.AsString()
		}
	}
	if runID != "run-1" {
		t.Errorf("run ID attribute = %q, want run-1", runID)
	}
	if got.Status().Description != "offline" {
		t.Errorf("status = %+v, want offline error", got.Status())
	}
	if len(got.Events()) == 0 {
		t.Error("EndSpan() should record the error event")
	}
}
