package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify_QueryCanceled(t *testing.T) {
	t.Parallel()
	kind, msg := classify(&pgconn.PgError{Code: sqlstateQueryCanceled, Message: "canceling statement due to statement timeout"})
	assert.Equal(t, domain.FailureTimeout, kind)
	assert.Contains(t, msg, "timed out")
}

func TestClassify_ReadOnlyViolation(t *testing.T) {
	t.Parallel()
	kind, msg := classify(&pgconn.PgError{Code: sqlstateReadOnlyTx, Message: "cannot execute INSERT in a read-only transaction"})
	assert.Equal(t, domain.FailureReadOnly, kind)
	assert.Contains(t, msg, "read-only")
}

func TestClassify_PermissionDenied(t *testing.T) {
	t.Parallel()
	kind, msg := classify(&pgconn.PgError{Code: sqlstateInsufficientPrv, Message: "permission denied for table secrets"})
	assert.Equal(t, domain.FailureDatabase, kind)
	assert.Contains(t, msg, "permission denied")
}

func TestClassify_OtherPgError(t *testing.T) {
	t.Parallel()
	kind, msg := classify(&pgconn.PgError{Code: "42703", Message: `column "nope" does not exist`})
	assert.Equal(t, domain.FailureDatabase, kind)
	assert.Contains(t, msg, "does not exist")
}

func TestClassify_ContextDeadline(t *testing.T) {
	t.Parallel()
	kind, _ := classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, domain.FailureTimeout, kind)
}

func TestClassify_ContextCanceled(t *testing.T) {
	t.Parallel()
	kind, msg := classify(fmt.Errorf("query: %w", context.Canceled))
	assert.Equal(t, domain.FailureDatabase, kind)
	assert.Equal(t, "query canceled by the client", msg)
	assert.False(t, kind.Retryable())
}

func TestClassify_PlainError(t *testing.T) {
	t.Parallel()
	kind, msg := classify(fmt.Errorf("connection refused"))
	assert.Equal(t, domain.FailureDatabase, kind)
	assert.Contains(t, msg, "connection refused")
}

func TestFailedOutcome(t *testing.T) {
	t.Parallel()
	out := failedOutcome(&pgconn.PgError{Code: sqlstateQueryCanceled})
	assert.False(t, out.Succeeded)
	assert.Equal(t, domain.FailureTimeout, out.Failure)
	assert.NotEmpty(t, out.ErrorMessage)
	assert.Empty(t, out.Rows)
}
