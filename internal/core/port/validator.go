package port

import "github.com/guillermoBallester/aqueduct/internal/core/domain"

// QueryValidator decides whether untrusted SQL text may be executed.
// The verdict carries the effective SQL to run when allowed.
type QueryValidator interface {
	Validate(sql string) domain.Verdict
}
