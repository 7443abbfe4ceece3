package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL SQLSTATE codes the guard classifies explicitly.
const (
	sqlstateQueryCanceled   = "57014"
	sqlstateReadOnlyTx      = "25006"
	sqlstateInsufficientPrv = "42501"
)

// Guard executes exactly one pre-validated statement per call inside a
// transaction the database itself marks read-only. The validator upstream is
// not trusted to have worked: a write that slips through is rejected by the
// engine, not by client-side string checks. Neither layer relies on the other.
type Guard struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewGuard(pool *pgxpool.Pool, queryTimeout time.Duration) *Guard {
	return &Guard{pool: pool, queryTimeout: queryTimeout}
}

// Execute borrows one connection, runs the statement under a read-only
// transaction with a server-side statement timeout, and folds every failure
// into the outcome. It never panics or returns an error across this boundary.
func (g *Guard) Execute(ctx context.Context, sql string) (outcome domain.ExecutionOutcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = failedOutcome(fmt.Errorf("panic during execution: %v", r))
		}
		outcome.ElapsedMS = elapsedMS(start)
	}()

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return failedOutcome(fmt.Errorf("beginning transaction: %w", err))
	}
	// Read-only transactions have nothing to commit; rollback on every path.
	// WithoutCancel so the rollback still reaches the server after a timeout.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	// Server-side timeout so PostgreSQL cancels the query itself even if the
	// Go context is lost. SET LOCAL scopes to this transaction only.
	timeoutMS := g.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return failedOutcome(fmt.Errorf("setting statement timeout: %w", err))
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return failedOutcome(err)
	}
	defer rows.Close()

	columns, result, err := materializeRows(rows)
	if err != nil {
		return failedOutcome(err)
	}

	return domain.ExecutionOutcome{
		Succeeded: true,
		Columns:   columns,
		Rows:      result,
		RowCount:  len(result),
	}
}

func failedOutcome(err error) domain.ExecutionOutcome {
	kind, msg := classify(err)
	return domain.ExecutionOutcome{
		Failure:      kind,
		ErrorMessage: msg,
	}
}

// classify maps a database-level error onto the failure taxonomy.
func classify(err error) (domain.FailureKind, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateQueryCanceled:
			return domain.FailureTimeout, "query timed out; try a more specific question"
		case sqlstateReadOnlyTx:
			return domain.FailureReadOnly, "write statement rejected by read-only transaction"
		case sqlstateInsufficientPrv:
			return domain.FailureDatabase, fmt.Sprintf("permission denied: %s", pgErr.Message)
		default:
			return domain.FailureDatabase, fmt.Sprintf("database error: %s", pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout, "query timed out; try a more specific question"
	}
	// Caller-initiated cancellation, not a server fault.
	if errors.Is(err, context.Canceled) {
		return domain.FailureDatabase, "query canceled by the client"
	}
	return domain.FailureDatabase, fmt.Sprintf("database error: %v", err)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
