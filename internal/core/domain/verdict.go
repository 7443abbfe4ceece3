package domain

// ReasonKind identifies why a query was denied by validation.
type ReasonKind string

const (
	ReasonForbiddenStatement ReasonKind = "FORBIDDEN_STATEMENT"
	ReasonMultipleStatements ReasonKind = "MULTIPLE_STATEMENTS"
	ReasonRestrictedTable    ReasonKind = "RESTRICTED_TABLE"
)

// Verdict is the validator's decision on a SQL string. When Allowed is true,
// EffectiveSQL is the text to execute, either identical to the input or with
// a row limit injected/clamped. When Allowed is false, Reason carries the denial
// kind and Detail a human-readable explanation.
type Verdict struct {
	Allowed      bool
	Reason       ReasonKind
	Detail       string
	EffectiveSQL string
}

func allow(sql string) Verdict {
	return Verdict{Allowed: true, EffectiveSQL: sql}
}

func deny(kind ReasonKind, detail string) Verdict {
	return Verdict{Reason: kind, Detail: detail}
}
