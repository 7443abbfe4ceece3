package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/aqueduct"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount         metric.Int64Counter
	QueryDuration      metric.Float64Histogram
	QueryErrors        metric.Int64Counter
	ValidationRejected metric.Int64Counter
	GenerationDuration metric.Float64Histogram
	ToolDuration       metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("aqueduct.query.count",
		metric.WithDescription("Total number of SQL queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("aqueduct.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("aqueduct.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	validationRejected, _ := meter.Int64Counter("aqueduct.validation.rejected",
		metric.WithDescription("Total number of queries denied by validation"),
	)
	generationDuration, _ := meter.Float64Histogram("aqueduct.generation.duration",
		metric.WithDescription("Natural-language-to-SQL generation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("aqueduct.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:         queryCount,
		QueryDuration:      queryDuration,
		QueryErrors:        queryErrors,
		ValidationRejected: validationRejected,
		GenerationDuration: generationDuration,
		ToolDuration:       toolDuration,
	}
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementValidationRejected(ctx context.Context) {
	i.ValidationRejected.Add(ctx, 1)
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) RecordGenerationDuration(ctx context.Context, ms float64) {
	i.GenerationDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
