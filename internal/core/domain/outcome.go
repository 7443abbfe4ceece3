package domain

import "time"

// FailureKind classifies a failed execution.
type FailureKind string

const (
	FailureTimeout  FailureKind = "TIMEOUT"
	FailureReadOnly FailureKind = "READ_ONLY_VIOLATION"
	FailureDatabase FailureKind = "DATABASE_ERROR"
)

// Retryable reports whether the orchestrator may retry the execution once.
// Read-only violations are input-dependent; retrying cannot change the outcome.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout
}

// ExecutionOutcome is the structured result of running one statement through
// the execution guard. Failures never escape the guard as errors or panics;
// they are folded into the outcome.
type ExecutionOutcome struct {
	Succeeded bool `json:"succeeded"`

	// Columns preserves the database's column order; Rows map column name to
	// value. Both are set only on success.
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`

	RowCount  int     `json:"row_count"`
	ElapsedMS float64 `json:"elapsed_ms"`

	// Failure and ErrorMessage are set only when Succeeded is false.
	Failure      FailureKind `json:"failure,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// AuditRecord captures one trip through the pipeline for external persistence.
// The core builds it; the audit sink stores it.
type AuditRecord struct {
	Tool         string // MCP tool that triggered the call, when known
	Question     string
	GeneratedSQL string
	Verdict      Verdict
	Outcome      *ExecutionOutcome // nil when validation denied or generation failed
	Timestamp    time.Time
}
