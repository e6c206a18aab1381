// internal/common/observability/metrics.go
package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"renter-wizard/internal/common/logger"
)

// Observability exposes OpenTelemetry instruments for gateway calls and
// wizard sessions through a Prometheus reader.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	gatewayCalls    otelmetric.Int64Counter
	gatewayDuration otelmetric.Float64Histogram
	sessionsOpened  otelmetric.Int64Counter
	log             logger.Logger
}

// New registers the exporter with reg, or with the default registry when
// reg is nil. A failed exporter yields an Observability whose Record
// methods do nothing.
func New(serviceName string, reg promclient.Registerer, log logger.Logger) *Observability {
	opts := []prometheus.Option{}
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{
			"error": err.Error(),
		})
		return &Observability{log: log}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	gatewayCalls, _ := meter.Int64Counter(
		"gateway.calls",
		otelmetric.WithDescription("Number of persistence gateway calls"),
	)

	gatewayDuration, _ := meter.Float64Histogram(
		"gateway.duration",
		otelmetric.WithDescription("Persistence gateway call duration"),
		otelmetric.WithUnit("ms"),
	)

	sessionsOpened, _ := meter.Int64Counter(
		"wizard.sessions.opened",
		otelmetric.WithDescription("Number of wizard sessions opened"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		gatewayCalls:    gatewayCalls,
		gatewayDuration: gatewayDuration,
		sessionsOpened:  sessionsOpened,
		log:             log,
	}
}

// RecordGatewayCall satisfies wizard.CallRecorder.
func (o *Observability) RecordGatewayCall(ctx context.Context, operation, status string, d time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.gatewayCalls != nil {
		o.gatewayCalls.Add(ctx, 1, attrs)
	}
	if o.gatewayDuration != nil {
		o.gatewayDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
	}
}

func (o *Observability) RecordSessionOpened(ctx context.Context, surface string) {
	if o.sessionsOpened != nil {
		o.sessionsOpened.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("surface", surface),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.meterProvider.Shutdown(ctx); err != nil && o.log != nil {
		o.log.Warn("meter provider shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
