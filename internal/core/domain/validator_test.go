package domain

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_SelectWithoutLimit(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM leads WHERE state = 'Texas'", DefaultRules())
	require.True(t, v.Allowed)
	assert.Equal(t, "SELECT * FROM leads WHERE state = 'Texas' LIMIT 500", v.EffectiveSQL)
}

func TestValidate_SelectWithLimitUnchanged(t *testing.T) {
	t.Parallel()
	sql := "SELECT id, name FROM leads LIMIT 10"
	v := Validate(sql, DefaultRules())
	require.True(t, v.Allowed)
	assert.Equal(t, sql, v.EffectiveSQL)
}

func TestValidate_ClampsOversizedLimit(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id FROM leads LIMIT 999999", DefaultRules())
	require.True(t, v.Allowed)
	assert.Contains(t, v.EffectiveSQL, "LIMIT 5000")
	assert.NotContains(t, v.EffectiveSQL, "999999")
}

func TestValidate_LimitAtMaxUnchanged(t *testing.T) {
	t.Parallel()
	sql := "SELECT id FROM leads LIMIT 5000"
	v := Validate(sql, DefaultRules())
	require.True(t, v.Allowed)
	assert.Equal(t, sql, v.EffectiveSQL)
}

// An allowed query's effective SQL must itself validate unchanged, so the
// rewrite can be applied any number of times.
func TestValidate_EffectiveSQLIsFixedPoint(t *testing.T) {
	t.Parallel()
	rules := DefaultRules()
	inputs := []string{
		"SELECT * FROM leads WHERE state = 'Texas'",
		"SELECT id FROM leads LIMIT 999999",
		"SELECT id FROM leads LIMIT 10",
		"SELECT count(*) FROM orders GROUP BY region",
		"SELECT id FROM leads -- latest",
	}
	for _, sql := range inputs {
		first := Validate(sql, rules)
		require.True(t, first.Allowed, sql)
		second := Validate(first.EffectiveSQL, rules)
		require.True(t, second.Allowed, sql)
		assert.Equal(t, first.EffectiveSQL, second.EffectiveSQL, sql)
	}
}

// A trailing line comment must not swallow the injected LIMIT clause.
func TestValidate_TrailingLineCommentStillGetsLimit(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id FROM leads -- latest", DefaultRules())
	require.True(t, v.Allowed)

	tree, err := pg_query.Parse(v.EffectiveSQL)
	require.NoError(t, err)
	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	require.NotNil(t, sel.LimitCount, "effective SQL must carry a real LIMIT clause")
	assert.EqualValues(t, 500, sel.LimitCount.GetAConst().GetIval().Ival)
}

func TestValidate_BlockCommentStillGetsLimit(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id FROM leads /* latest */", DefaultRules())
	require.True(t, v.Allowed)

	tree, err := pg_query.Parse(v.EffectiveSQL)
	require.NoError(t, err)
	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	require.NotNil(t, sel.LimitCount)
}

func TestValidate_RejectsDelete(t *testing.T) {
	t.Parallel()
	v := Validate("DELETE FROM customers", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonForbiddenStatement, v.Reason)
	assert.Empty(t, v.EffectiveSQL)
}

func TestValidate_RejectsInsertUpdateDrop(t *testing.T) {
	t.Parallel()
	for _, sql := range []string{
		"INSERT INTO leads (name) VALUES ('x')",
		"UPDATE leads SET name = 'x'",
		"DROP TABLE leads",
		"TRUNCATE leads",
		"ALTER TABLE leads ADD COLUMN x int",
		"CREATE TABLE t (id int)",
		"GRANT SELECT ON leads TO public",
	} {
		v := Validate(sql, DefaultRules())
		require.False(t, v.Allowed, sql)
		assert.Equal(t, ReasonForbiddenStatement, v.Reason, sql)
	}
}

func TestValidate_RejectsMultipleStatements(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM leads; DROP TABLE leads;", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonMultipleStatements, v.Reason)
}

func TestValidate_RejectsTwoSelects(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT 1; SELECT 2", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonMultipleStatements, v.Reason)
}

func TestValidate_ToleratesTrailingSemicolon(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id FROM leads LIMIT 10;", DefaultRules())
	require.True(t, v.Allowed)
	assert.Equal(t, "SELECT id FROM leads LIMIT 10", v.EffectiveSQL)
}

func TestValidate_SemicolonInsideLiteralIsOneStatement(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM leads WHERE note = 'a;b'", DefaultRules())
	require.True(t, v.Allowed)
}

func TestValidate_RejectsRestrictedTable(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM query_logs", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
	assert.Contains(t, v.Detail, "query_logs")
}

func TestValidate_RestrictedTableCaseInsensitive(t *testing.T) {
	t.Parallel()
	for _, sql := range []string{
		"SELECT * FROM Query_Logs",
		"SELECT * FROM USERS",
		`SELECT * FROM "secrets"`,
	} {
		v := Validate(sql, DefaultRules())
		require.False(t, v.Allowed, sql)
		assert.Equal(t, ReasonRestrictedTable, v.Reason, sql)
	}
}

func TestValidate_RestrictedTableSchemaQualified(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM public.users", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
}

func TestValidate_RestrictedTableInJoin(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT l.id FROM leads l JOIN users u ON u.id = l.owner_id", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
}

func TestValidate_RestrictedTableInSubquery(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM leads WHERE owner_id IN (SELECT id FROM users)", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
}

func TestValidate_RestrictedTableInCTE(t *testing.T) {
	t.Parallel()
	v := Validate("WITH u AS (SELECT id FROM users) SELECT * FROM u", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
}

func TestValidate_AllowsCTE(t *testing.T) {
	t.Parallel()
	v := Validate("WITH recent AS (SELECT id FROM leads) SELECT * FROM recent LIMIT 5", DefaultRules())
	require.True(t, v.Allowed)
}

func TestValidate_KeywordInsideStringLiteralAllowed(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM leads WHERE company = 'Dropbox'", DefaultRules())
	require.True(t, v.Allowed)
}

func TestValidate_KeywordInsideColumnValueAllowed(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT * FROM notes WHERE body = 'please update the doc'", DefaultRules())
	require.True(t, v.Allowed)
}

func TestValidate_BlockedFunctionIdentifier(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT pg_read_file('/etc/passwd')", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonForbiddenStatement, v.Reason)
}

func TestValidate_RejectsSelectInto(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id INTO backup FROM leads", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonForbiddenStatement, v.Reason)
}

func TestValidate_RejectsEmptyAndWhitespace(t *testing.T) {
	t.Parallel()
	for _, sql := range []string{"", "   ", "\n\t"} {
		v := Validate(sql, DefaultRules())
		require.False(t, v.Allowed)
		assert.Equal(t, ReasonForbiddenStatement, v.Reason)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	t.Parallel()
	v := Validate("NOT VALID SQL !!!", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonForbiddenStatement, v.Reason)
}

func TestValidate_RejectsExplain(t *testing.T) {
	t.Parallel()
	v := Validate("EXPLAIN SELECT 1", DefaultRules())
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonForbiddenStatement, v.Reason)
}

func TestValidate_NonLiteralLimitPassesThrough(t *testing.T) {
	t.Parallel()
	sql := "SELECT id FROM leads LIMIT ALL"
	v := Validate(sql, DefaultRules())
	require.True(t, v.Allowed)
	assert.Equal(t, sql, v.EffectiveSQL)
}

func TestValidate_CustomRules(t *testing.T) {
	t.Parallel()
	rules := DefaultRules().Extend(nil, []string{"salaries"})
	v := Validate("SELECT * FROM salaries", rules)
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonRestrictedTable, v.Reason)
}

func TestValidate_CustomLimits(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(defaultBlockedKeywords, defaultBlockedTables, 25, 100)
	v := Validate("SELECT id FROM leads", rules)
	require.True(t, v.Allowed)
	assert.Equal(t, "SELECT id FROM leads LIMIT 25", v.EffectiveSQL)

	v = Validate("SELECT id FROM leads LIMIT 5000", rules)
	require.True(t, v.Allowed)
	assert.Contains(t, v.EffectiveSQL, "LIMIT 100")
}

func TestValidate_UnionStaysSingleStatement(t *testing.T) {
	t.Parallel()
	v := Validate("SELECT id FROM leads UNION SELECT id FROM orders LIMIT 10", DefaultRules())
	require.True(t, v.Allowed)
}

func TestRuleValidator_ImplementsPortShape(t *testing.T) {
	t.Parallel()
	rv := NewRuleValidator(DefaultRules())
	v := rv.Validate("SELECT 1")
	assert.True(t, v.Allowed)
}
