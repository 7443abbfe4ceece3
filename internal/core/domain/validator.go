package domain

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Validate decides whether the untrusted SQL text is safe to execute under the
// given rules. It is a pure function: no I/O, no shared state, deterministic.
//
// The checks run against PostgreSQL's own parser and lexer rather than regex
// matching, so a keyword hidden in a comment is still caught while a value
// like 'Dropbox' inside a string literal never trips the blocklist.
//
// Check order: multi-statement, statement type, blocked keywords, restricted
// tables, then row-limit enforcement (which never denies).
func Validate(sql string, rules RuleSet) Verdict {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return deny(ReasonForbiddenStatement, "empty query")
	}

	// A lexer-level split handles semicolons inside literals and comments
	// correctly, and still counts statements when the trailing one is garbage
	// the parser would choke on. A single trailing semicolon is tolerated.
	if stmts, err := pg_query.SplitWithScanner(trimmed, true); err == nil && len(stmts) > 1 {
		return deny(ReasonMultipleStatements, "multiple SQL statements detected; only a single SELECT is allowed")
	}

	base := strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))

	tree, err := pg_query.Parse(base)
	if err != nil {
		return deny(ReasonForbiddenStatement, fmt.Sprintf("not parseable as SQL: %v", err))
	}
	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return deny(ReasonForbiddenStatement, "empty query")
	}
	if len(tree.Stmts) > 1 {
		return deny(ReasonMultipleStatements, "multiple SQL statements detected; only a single SELECT is allowed")
	}

	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return deny(ReasonForbiddenStatement, "only SELECT queries are allowed")
	}
	// SELECT ... INTO creates a table despite parsing as a SelectStmt.
	if sel.IntoClause != nil {
		return deny(ReasonForbiddenStatement, "SELECT INTO is not allowed")
	}

	if kw, found := scanBlockedKeyword(base, rules); found {
		return deny(ReasonForbiddenStatement, fmt.Sprintf("forbidden keyword %s detected; only SELECT queries are allowed", kw))
	}

	if tbl, found := findBlockedRelation(tree, rules); found {
		return deny(ReasonRestrictedTable, fmt.Sprintf("access to restricted table %q is not allowed", tbl))
	}

	return enforceRowLimit(base, tree, sel, rules)
}

// scanBlockedKeyword runs the blocklist over the lexer's token stream.
// Only keyword tokens and bare identifiers are compared, so string literals,
// quoted identifiers and comments can neither hide nor fake a match.
func scanBlockedKeyword(sql string, rules RuleSet) (string, bool) {
	result, err := pg_query.Scan(sql)
	if err != nil {
		// The parser already accepted this text; the lexer disagreeing with
		// the parser is not a state worth reasoning about. Fail closed.
		return "unscannable input", true
	}
	for _, tok := range result.Tokens {
		if tok.KeywordKind == pg_query.KeywordKind_NO_KEYWORD && tok.Token != pg_query.Token_IDENT {
			continue
		}
		if int(tok.End) > len(sql) || tok.Start < 0 {
			continue
		}
		if text := sql[tok.Start:tok.End]; rules.KeywordBlocked(text) {
			return strings.ToUpper(text), true
		}
	}
	return "", false
}

// findBlockedRelation walks the entire parse tree (FROM clauses, JOINs,
// subqueries, CTE bodies) and reports the first relation matching the table
// blocklist. A CTE whose name shadows a blocked table is denied too; the
// validator is deliberately conservative.
func findBlockedRelation(tree *pg_query.ParseResult, rules RuleSet) (string, bool) {
	var blocked string
	walkMessages(tree.ProtoReflect(), func(m protoreflect.Message) bool {
		rv, ok := m.Interface().(*pg_query.RangeVar)
		if !ok {
			return true
		}
		if rules.TableBlocked(rv.Schemaname, rv.Relname) {
			blocked = rv.Relname
			if rv.Schemaname != "" {
				blocked = rv.Schemaname + "." + rv.Relname
			}
			return false
		}
		return true
	})
	return blocked, blocked != ""
}

// walkMessages visits every message in a protobuf tree, depth-first.
// The visit callback returns false to stop the walk.
func walkMessages(m protoreflect.Message, visit func(protoreflect.Message) bool) bool {
	if !visit(m) {
		return false
	}
	cont := true
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			// pg_query trees carry no map fields.
		case fd.IsList():
			if fd.Kind() == protoreflect.MessageKind {
				list := v.List()
				for i := 0; i < list.Len(); i++ {
					if !walkMessages(list.Get(i).Message(), visit) {
						cont = false
						return false
					}
				}
			}
		case fd.Kind() == protoreflect.MessageKind:
			if !walkMessages(v.Message(), visit) {
				cont = false
				return false
			}
		}
		return true
	})
	return cont
}

// enforceRowLimit guarantees an upper bound on result size. It never denies:
// a missing LIMIT gets the default injected and an oversized literal LIMIT is
// clamped, both via parse-tree rewrite and deparse. Rewriting the tree rather
// than the text keeps the clause out of reach of trailing line comments, which
// would swallow an appended suffix. Queries already within bounds pass through
// byte-for-byte. The rewrite is a fixed point, so re-validating an effective
// SQL yields it unchanged.
func enforceRowLimit(base string, tree *pg_query.ParseResult, sel *pg_query.SelectStmt, rules RuleSet) Verdict {
	if sel.LimitCount == nil {
		sel.LimitCount = &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(rules.DefaultRowLimit)}},
		}}}
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
		return deparse(tree)
	}

	ac := sel.LimitCount.GetAConst()
	if ac == nil || ac.GetIval() == nil {
		// Non-literal LIMIT (bind parameter, expression, LIMIT ALL). Nothing
		// safe to clamp client-side; the guard's statement timeout still
		// bounds the damage.
		return allow(base)
	}

	if int(ac.GetIval().Ival) <= rules.MaxRowLimit {
		return allow(base)
	}

	ac.Val = &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(rules.MaxRowLimit)}}
	return deparse(tree)
}

func deparse(tree *pg_query.ParseResult) Verdict {
	rewritten, err := pg_query.Deparse(tree)
	if err != nil {
		return deny(ReasonForbiddenStatement, fmt.Sprintf("failed to rewrite LIMIT clause: %v", err))
	}
	return allow(rewritten)
}

// RuleValidator binds a RuleSet to the port.QueryValidator shape so callers
// don't have to carry rules around.
type RuleValidator struct {
	rules RuleSet
}

func NewRuleValidator(rules RuleSet) *RuleValidator {
	return &RuleValidator{rules: rules}
}

func (v *RuleValidator) Validate(sql string) Verdict {
	return Validate(sql, v.rules)
}
