package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditorDDL = `
	CREATE TABLE IF NOT EXISTS query_logs (
		id                 BIGSERIAL PRIMARY KEY,
		tool               TEXT,
		user_question      TEXT,
		generated_sql      TEXT,
		effective_sql      TEXT,
		validation_passed  BOOLEAN NOT NULL,
		validation_reason  TEXT,
		execution_time_ms  DOUBLE PRECISION,
		row_count          INTEGER,
		error_message      TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

const auditorInsert = `
	INSERT INTO query_logs
		(tool, user_question, generated_sql, effective_sql, validation_passed,
		 validation_reason, execution_time_ms, row_count, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// SQLAuditor persists audit records into the query_logs table. Writes run
// outside the guard's read-only transactions, on the shared pool, and are
// best-effort: a failed insert is logged and dropped, never surfaced.
type SQLAuditor struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSQLAuditor creates the auditor and its backing table if missing.
func NewSQLAuditor(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*SQLAuditor, error) {
	if _, err := pool.Exec(ctx, auditorDDL); err != nil {
		return nil, err
	}
	return &SQLAuditor{pool: pool, logger: logger}, nil
}

func (a *SQLAuditor) Record(ctx context.Context, record domain.AuditRecord) {
	var (
		reason    *string
		elapsedMS *float64
		rowCount  *int
		errMsg    *string
	)
	if !record.Verdict.Allowed && record.Verdict.Detail != "" {
		s := record.Verdict.Detail
		reason = &s
	}
	if out := record.Outcome; out != nil {
		elapsedMS = &out.ElapsedMS
		rowCount = &out.RowCount
		if out.ErrorMessage != "" {
			s := out.ErrorMessage
			errMsg = &s
		}
	}

	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	// Detached context with its own deadline so a cancelled request still
	// gets its audit row.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := a.pool.Exec(insertCtx, auditorInsert,
		record.Tool,
		record.Question,
		record.GeneratedSQL,
		record.Verdict.EffectiveSQL,
		record.Verdict.Allowed,
		reason,
		elapsedMS,
		rowCount,
		errMsg,
		ts,
	)
	if err != nil {
		a.logger.WarnContext(ctx, "audit insert failed", slog.String("error.message", err.Error()))
	}
}

func (a *SQLAuditor) Close() error { return nil }
