package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/samirrijal/fleetmap"

// InitTracer installs a global tracer provider exporting spans over OTLP/gRPC
// to endpoint. The returned function flushes and stops the exporter.
func InitTracer(ctx context.Context, serviceName, endpoint string) (func(), error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}, nil
}

// Tracer returns the fleetmap tracer from the global provider.
// Without InitTracer it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Span attribute keys.
const (
	AttrEntityID  = attribute.Key("fleetmap.entity_id")
	AttrZoom      = attribute.Key("fleetmap.zoom")
	AttrEntities  = attribute.Key("fleetmap.entities")
	AttrMarkers   = attribute.Key("fleetmap.markers")
	AttrCacheHit  = attribute.Key("fleetmap.cache_hit")
	AttrPointsIn  = attribute.Key("fleetmap.points_in")
	AttrPointsOut = attribute.Key("fleetmap.points_out")
)

// Span names.
const (
	SpanClusters      = "map.clusters"
	SpanEntities      = "map.entities"
	SpanTrail         = "trail.get"
	SpanSimplify      = "trail.simplify"
	SpanIngest        = "ingest.process"
	SpanCompactTrail  = "trail.compact"
	SpanFollowSession = "viewport.session"
)
