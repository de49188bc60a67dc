package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	stageRuns     otelmetric.Int64Counter
	stageDuration otelmetric.Float64Histogram
	pipelineRuns  otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}
	return newWithReader(serviceName, exporter)
}

func newWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	stageRuns, _ := meter.Int64Counter(
		"stage.runs",
		otelmetric.WithDescription("Number of verification stage executions"),
	)

	stageDuration, _ := meter.Float64Histogram(
		"stage.duration",
		otelmetric.WithDescription("Verification stage duration"),
		otelmetric.WithUnit("ms"),
	)

	pipelineRuns, _ := meter.Int64Counter(
		"pipeline.runs",
		otelmetric.WithDescription("Completed pipeline runs by final status"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		stageRuns:     stageRuns,
		stageDuration: stageDuration,
		pipelineRuns:  pipelineRuns,
	}
}

// RecordStage records one execution of stage with its outcome and duration.
// Safe on a nil receiver.
func (o *Observability) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	)
	if o.stageRuns != nil {
		o.stageRuns.Add(ctx, 1, attrs)
	}
	if o.stageDuration != nil {
		o.stageDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordPipeline(ctx context.Context, status string) {
	if o == nil || o.pipelineRuns == nil {
		return
	}
	o.pipelineRuns.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
