// Package telemetry configura el TracerProvider de OpenTelemetry para los servicios.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jhoicas/stockflow/pkg/config"
)

// ServiceVersion versión reportada en el recurso de trazas.
const ServiceVersion = "0.1.0"

// Setup registra el TracerProvider global y el propagador W3C.
// Sin endpoint OTLP ni stdout no se instala exportador (tracer no-op), pero el
// propagador se registra igual para que los headers traceparent viajen entre servicios.
func Setup(ctx context.Context, serviceName string, cfg config.TelemetryConfig) (shutdown func(context.Context) error, err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var exporters []sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		exp, errExp := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if errExp != nil {
			err = errors.Join(err, fmt.Errorf("otlp exporter: %w", errExp))
		} else {
			exporters = append(exporters, exp)
		}
	}
	if cfg.Stdout {
		exp, errExp := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if errExp != nil {
			err = errors.Join(err, fmt.Errorf("stdout exporter: %w", errExp))
		} else {
			exporters = append(exporters, exp)
		}
	}
	if len(exporters) == 0 {
		return func(context.Context) error { return nil }, err
	}

	res, errRes := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", ServiceVersion),
		),
	)
	if errRes != nil {
		return nil, fmt.Errorf("crear recurso: %w", errRes)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, err
}

// NewTracedTransport envuelve base con instrumentación otelhttp; los headers de traza
// se inyectan en cada llamada saliente. base nil = transporte con pool para servicio a servicio.
func NewTracedTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 10
		base = t
	}
	return otelhttp.NewTransport(base)
}
