package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	restoreOpenTelemetryGlobals(t)
	sentinel := noop.NewTracerProvider()
	otel.SetTracerProvider(sentinel)

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if otel.GetTracerProvider() != sentinel {
		t.Fatal("Init() replaced the tracer provider without an endpoint")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInitWithEndpoint(t *testing.T) {
	restoreOpenTelemetryGlobals(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")
	t.Setenv("OTEL_SERVICE_NAME", "ruleeval-test")

	shutdown, err := Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("tracer provider type = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestServiceNameFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", " ")
	if got := serviceNameFromEnv(); got != defaultServiceName {
		t.Fatalf("serviceNameFromEnv() = %q, want %q", got, defaultServiceName)
	}

	t.Setenv("OTEL_SERVICE_NAME", "evaluator")
	if got := serviceNameFromEnv(); got != "evaluator" {
		t.Fatalf("serviceNameFromEnv() = %q, want evaluator", got)
	}
}

func TestTracerFollowsGlobalProvider(t *testing.T) {
	restoreOpenTelemetryGlobals(t)
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	_, span := Tracer().Start(context.Background(), "rules.Evaluate")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("Tracer() did not use the installed provider")
	}
}

func restoreOpenTelemetryGlobals(t *testing.T) {
	t.Helper()
	provider := otel.GetTracerProvider()
	propagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagator)
	})
}
