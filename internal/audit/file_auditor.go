package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/guillermoBallester/aqueduct/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp    string   `json:"ts"`
	Tool         string   `json:"tool,omitempty"`
	Question     string   `json:"question,omitempty"`
	GeneratedSQL string   `json:"generated_sql,omitempty"`
	EffectiveSQL string   `json:"effective_sql,omitempty"`
	Allowed      bool     `json:"allowed"`
	DeniedReason string   `json:"denied_reason,omitempty"`
	RowsReturned *int     `json:"rows_returned,omitempty"`
	DurationMS   *float64 `json:"duration_ms,omitempty"`
	Error        *string  `json:"error,omitempty"`
}

// FileAuditor writes audit records as NDJSON (one JSON object per line).
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, record domain.AuditRecord) {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	fe := fileEntry{
		Timestamp:    ts.UTC().Format(time.RFC3339),
		Tool:         record.Tool,
		Question:     record.Question,
		GeneratedSQL: record.GeneratedSQL,
		EffectiveSQL: record.Verdict.EffectiveSQL,
		Allowed:      record.Verdict.Allowed,
	}
	if !record.Verdict.Allowed {
		fe.DeniedReason = string(record.Verdict.Reason)
	}
	if out := record.Outcome; out != nil {
		fe.RowsReturned = &out.RowCount
		fe.DurationMS = &out.ElapsedMS
		if out.ErrorMessage != "" {
			s := out.ErrorMessage
			fe.Error = &s
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit records.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, domain.AuditRecord) {}
func (NoopAuditor) Close() error                               { return nil }

// MultiAuditor fans one record out to several sinks.
type MultiAuditor []port.QueryAuditor

func (m MultiAuditor) Record(ctx context.Context, record domain.AuditRecord) {
	for _, a := range m {
		a.Record(ctx, record)
	}
}

func (m MultiAuditor) Close() error {
	var firstErr error
	for _, a := range m {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
