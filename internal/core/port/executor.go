package port

import (
	"context"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
)

// QueryExecutor runs one pre-validated statement under database-level
// read-only constraints. It never returns an error: every failure is folded
// into the outcome so the caller always receives a well-formed result.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) domain.ExecutionOutcome
}
