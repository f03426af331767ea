// Package tracing provides opt-in OpenTelemetry tracing. Tracing is enabled
// only when OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise [Init] returns a
// no-op shutdown function.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "ruleeval"

// InstrumentationName names the tracer used for evaluation spans
const InstrumentationName = "github.com/liamcoop/ruleeval"

// Attributes recorded on evaluation spans
const (
	RulesTotalKey     = attribute.Key("ruleeval.rules.total")
	RulesMatchedKey   = attribute.Key("ruleeval.rules.matched")
	RulesSkippedKey   = attribute.Key("ruleeval.rules.skipped")
	PayloadDroppedKey = attribute.Key("ruleeval.payload.dropped")
	PayloadUnknownKey = attribute.Key("ruleeval.payload.unknown")
	SnapshotCachedKey = attribute.Key("ruleeval.snapshot.cached")
)

// Tracer returns the evaluation tracer from the global provider. It is looked
// up on every call so spans follow the provider installed by Init.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Init configures the global tracer provider with an OTLP HTTP exporter.
// The returned function flushes pending spans and should be called on
// shutdown.
func Init(ctx context.Context) (shutdown func(context.Context) error, err error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceNameFromEnv()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func serviceNameFromEnv() string {
	if name := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); name != "" {
		return name
	}
	return defaultServiceName
}
