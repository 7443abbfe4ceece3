package domain

import "strings"

// RuleSet is the static safety configuration applied to every query.
// It is loaded once at startup and treated as immutable for the process
// lifetime; validators receive it explicitly rather than via global state.
type RuleSet struct {
	// BlockedKeywords are SQL keywords (and bare function identifiers such as
	// pg_read_file) that must not appear anywhere in a query, matched as whole
	// tokens, case-insensitively.
	BlockedKeywords map[string]struct{}

	// BlockedTables are relation names the assistant must never read,
	// case-insensitive. Entries may be bare ("users") or schema-qualified
	// ("audit.query_logs").
	BlockedTables map[string]struct{}

	// DefaultRowLimit is appended as a LIMIT clause to queries that carry none.
	DefaultRowLimit int

	// MaxRowLimit caps an explicit LIMIT clause; larger values are rewritten down.
	MaxRowLimit int
}

// defaultBlockedKeywords covers DDL/DML verbs plus the PostgreSQL server-side
// file access and remote-execution surface.
var defaultBlockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE",
	"REPLACE", "GRANT", "REVOKE", "EXEC", "EXECUTE", "CALL", "COPY",
	"LOAD", "IMPORT", "EXPORT", "DBLINK",
	"PG_READ_FILE", "PG_WRITE_FILE", "LO_IMPORT", "LO_EXPORT",
}

// defaultBlockedTables are the tables the assistant must never expose,
// including its own audit trail.
var defaultBlockedTables = []string{
	"query_logs", "users", "secrets", "passwords", "api_keys",
}

// DefaultRules returns the built-in rule set. Operators typically extend it
// via configuration rather than replace it.
func DefaultRules() RuleSet {
	return NewRuleSet(defaultBlockedKeywords, defaultBlockedTables, 500, 5000)
}

// NewRuleSet normalizes keyword and table lists into a RuleSet.
// Keywords are stored uppercase, tables lowercase, so lookups are
// case-insensitive either way.
func NewRuleSet(keywords, tables []string, defaultLimit, maxLimit int) RuleSet {
	rs := RuleSet{
		BlockedKeywords: make(map[string]struct{}, len(keywords)),
		BlockedTables:   make(map[string]struct{}, len(tables)),
		DefaultRowLimit: defaultLimit,
		MaxRowLimit:     maxLimit,
	}
	for _, k := range keywords {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k != "" {
			rs.BlockedKeywords[k] = struct{}{}
		}
	}
	for _, t := range tables {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			rs.BlockedTables[t] = struct{}{}
		}
	}
	return rs
}

// Extend returns a copy of the rule set with additional blocked keywords and
// tables. The receiver is left untouched.
func (r RuleSet) Extend(keywords, tables []string) RuleSet {
	out := NewRuleSet(keywords, tables, r.DefaultRowLimit, r.MaxRowLimit)
	for k := range r.BlockedKeywords {
		out.BlockedKeywords[k] = struct{}{}
	}
	for t := range r.BlockedTables {
		out.BlockedTables[t] = struct{}{}
	}
	return out
}

// TableBlocked reports whether the given relation is blocklisted, matching
// both the bare name and the schema-qualified form.
func (r RuleSet) TableBlocked(schema, name string) bool {
	name = strings.ToLower(name)
	if _, ok := r.BlockedTables[name]; ok {
		return true
	}
	if schema != "" {
		if _, ok := r.BlockedTables[strings.ToLower(schema)+"."+name]; ok {
			return true
		}
	}
	return false
}

// KeywordBlocked reports whether the given token is a blocklisted keyword.
func (r RuleSet) KeywordBlocked(token string) bool {
	_, ok := r.BlockedKeywords[strings.ToUpper(token)]
	return ok
}
