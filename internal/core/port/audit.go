package port

import (
	"context"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
)

// QueryAuditor persists audit records. Implementations are best-effort:
// audit I/O must never fail the request that produced the record.
type QueryAuditor interface {
	Record(ctx context.Context, record domain.AuditRecord)
	Close() error
}
