package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// AskResult is the full pipeline output for one question or raw query.
type AskResult struct {
	Question     string                   `json:"question,omitempty"`
	GeneratedSQL string                   `json:"generated_sql,omitempty"`
	EffectiveSQL string                   `json:"effective_sql,omitempty"`
	CanAnswer    bool                     `json:"can_answer"`
	Allowed      bool                     `json:"allowed"`
	DeniedReason domain.ReasonKind        `json:"denied_reason,omitempty"`
	DeniedDetail string                   `json:"denied_detail,omitempty"`
	Outcome      *domain.ExecutionOutcome `json:"outcome,omitempty"`
}

// AssistantService sequences generation, validation, guarded execution and
// auditing. Validation (domain) and execution (infrastructure) stay
// independent layers: the executor's read-only transaction does not trust
// the validator to have worked, and vice versa.
type AssistantService struct {
	generator port.Generator
	validator port.QueryValidator
	executor  port.QueryExecutor
	explorer  port.SchemaExplorer
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // column-name -> mask-type (nil = no masking)
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewAssistantService(
	generator port.Generator,
	validator port.QueryValidator,
	executor port.QueryExecutor,
	explorer port.SchemaExplorer,
	auditor port.QueryAuditor,
	logger *slog.Logger,
	masks map[string]domain.MaskType,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *AssistantService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AssistantService{
		generator: generator,
		validator: validator,
		executor:  executor,
		explorer:  explorer,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
	}
}

// Ask runs the full pipeline: question -> SQL -> validate -> execute -> audit.
// Generation failures return an error; everything downstream is reported
// through the AskResult, never as a panic or stray error.
func (s *AssistantService) Ask(ctx context.Context, question string) (*AskResult, error) {
	ctx, span := s.tracer.Start(ctx, "AssistantService.Ask",
		trace.WithAttributes(attribute.String("assistant.question", question)),
	)
	defer span.End()

	result := &AskResult{Question: question, CanAnswer: true}

	schemaCtx, err := s.explorer.SchemaContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("building schema context: %w", err)
	}

	genStart := time.Now()
	gen, err := s.generator.Generate(ctx, question, schemaCtx)
	s.inst.RecordGenerationDuration(ctx, float64(time.Since(genStart).Milliseconds()))
	if err != nil {
		s.audit(ctx, domain.AuditRecord{Question: question, Timestamp: time.Now().UTC()})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating SQL: %w", err)
	}
	if !gen.CanAnswer {
		result.CanAnswer = false
		s.logger.InfoContext(ctx, "schema cannot answer question",
			slog.String("assistant.question", question),
		)
		s.audit(ctx, domain.AuditRecord{Question: question, Timestamp: time.Now().UTC()})
		return result, nil
	}
	result.GeneratedSQL = gen.SQL

	s.runGuarded(ctx, span, question, gen.SQL, result)
	return result, nil
}

// Query is the direct path for callers that already hold SQL: validate and
// execute, skipping generation. The SQL is treated exactly as untrusted as
// the oracle's output.
func (s *AssistantService) Query(ctx context.Context, sql string) (*AskResult, error) {
	ctx, span := s.tracer.Start(ctx, "AssistantService.Query",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	result := &AskResult{GeneratedSQL: sql, CanAnswer: true}
	s.runGuarded(ctx, span, "", sql, result)
	return result, nil
}

// runGuarded applies the two safety layers: the validator verdict and the
// executor's read-only transaction. A denial stops before any database work.
func (s *AssistantService) runGuarded(ctx context.Context, span trace.Span, question, sql string, result *AskResult) {
	verdict := s.validator.Validate(sql)
	result.Allowed = verdict.Allowed

	if !verdict.Allowed {
		result.DeniedReason = verdict.Reason
		result.DeniedDetail = verdict.Detail
		s.logger.WarnContext(ctx, "query validation rejected",
			slog.String("db.statement", sql),
			slog.String("validation.reason", string(verdict.Reason)),
			slog.String("validation.detail", verdict.Detail),
		)
		span.SetStatus(codes.Error, verdict.Detail)
		s.inst.IncrementValidationRejected(ctx)
		s.audit(ctx, domain.AuditRecord{
			Question:     question,
			GeneratedSQL: sql,
			Verdict:      verdict,
			Timestamp:    time.Now().UTC(),
		})
		return
	}
	result.EffectiveSQL = verdict.EffectiveSQL

	outcome := s.executor.Execute(ctx, verdict.EffectiveSQL)
	s.inst.RecordQueryDuration(ctx, outcome.ElapsedMS)

	s.audit(ctx, domain.AuditRecord{
		Question:     question,
		GeneratedSQL: sql,
		Verdict:      verdict,
		Outcome:      &outcome,
		Timestamp:    time.Now().UTC(),
	})

	if !outcome.Succeeded {
		s.logger.WarnContext(ctx, "query execution failed",
			slog.String("db.statement", verdict.EffectiveSQL),
			slog.String("failure.kind", string(outcome.Failure)),
			slog.String("error.message", outcome.ErrorMessage),
		)
		span.SetStatus(codes.Error, outcome.ErrorMessage)
		s.inst.IncrementQueryErrors(ctx)
		result.Outcome = &outcome
		return
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", outcome.RowCount))
	domain.MaskOutcome(&outcome, s.masks)
	result.Outcome = &outcome
}

func (s *AssistantService) audit(ctx context.Context, record domain.AuditRecord) {
	if s.auditor == nil {
		return
	}
	record.Tool = toolNameFromCtx(ctx)
	s.auditor.Record(ctx, record)
}
