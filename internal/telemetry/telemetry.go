// Package telemetry bootstraps OpenTelemetry metrics for the proxy
// and defines a handful of request-path counters/gauges. Nothing in the
// proxy or its binary creates or increments them.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMeterProvider bootstraps the OpenTelemetry MeterProvider with an
// OTLP/gRPC metric exporter targeting the given endpoint (e.g.
// "otel-collector:4317"). Metrics are flushed periodically via a
// PeriodicReader. The caller must defer mp.Shutdown(ctx) to flush
// pending metrics.
func InitMeterProvider(ctx context.Context, serviceName string, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// Instruments holds the proxy's request-path metrics.
type Instruments struct {
	RequestsTotal        metric.Int64Counter
	DeniedTotal           metric.Int64Counter
	ActiveSubscriptions   metric.Int64UpDownCounter
}

// NewInstruments creates the proxy's counters against the global meter
// provider. Call after InitMeterProvider.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter("pacsys-proxy")

	requests, err := meter.Int64Counter("pacsys_proxy_requests_total",
		metric.WithDescription("RPCs received by the supervised proxy, by method"))
	if err != nil {
		return nil, err
	}
	denied, err := meter.Int64Counter("pacsys_proxy_denied_total",
		metric.WithDescription("RPCs denied by the policy chain, by method"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("pacsys_proxy_active_subscriptions",
		metric.WithDescription("currently open Subscribe streams"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		RequestsTotal:       requests,
		DeniedTotal:         denied,
		ActiveSubscriptions: active,
	}, nil
}
