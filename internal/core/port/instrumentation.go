package port

import "context"

// Instrumentation abstracts metric recording so the core never imports an
// observability SDK directly.
type Instrumentation interface {
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	IncrementValidationRejected(ctx context.Context)
	RecordQueryDuration(ctx context.Context, ms float64)
	RecordGenerationDuration(ctx context.Context, ms float64)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation records nothing.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementQueryCount(context.Context)               {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)              {}
func (NoopInstrumentation) IncrementValidationRejected(context.Context)       {}
func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)      {}
func (NoopInstrumentation) RecordGenerationDuration(context.Context, float64) {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)       {}
