package postgres

// queryListTables has one %s placeholder for the schema filter clause.
const queryListTables = `
	SELECT
		t.table_schema,
		t.table_name,
		CASE t.table_type
			WHEN 'BASE TABLE' THEN 'table'
			WHEN 'VIEW' THEN 'view'
			ELSE lower(t.table_type)
		END AS type,
		COALESCE(s.n_live_tup, 0) AS row_estimate,
		(SELECT count(*)::int FROM information_schema.columns c
		 WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name
		) AS column_count,
		COALESCE(pg_catalog.obj_description(
			(quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass, 'pg_class'
		), '') AS comment
	FROM information_schema.tables t
	LEFT JOIN pg_stat_user_tables s
		ON s.schemaname = t.table_schema AND s.relname = t.table_name
	WHERE %s
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY t.table_schema, t.table_name`

// queryColumns lists all columns of all base tables, with comments, ordered
// for schema-context rendering. One %s placeholder for the schema filter.
const queryColumns = `
	SELECT
		c.table_schema,
		c.table_name,
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS nullable,
		COALESCE(c.column_default, '') AS column_default,
		COALESCE(pgd.description, '') AS comment
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON c.table_name = t.table_name
	   AND c.table_schema = t.table_schema
	LEFT JOIN pg_catalog.pg_statio_all_tables st
		ON st.relname = c.table_name AND st.schemaname = c.table_schema
	LEFT JOIN pg_catalog.pg_description pgd
		ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
	WHERE %s
		AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// queryTableColumns fetches columns of a single table. $1 schema, $2 table.
const queryTableColumns = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS nullable,
		COALESCE(c.column_default, '') AS column_default,
		COALESCE(pgd.description, '') AS comment
	FROM information_schema.columns c
	LEFT JOIN pg_catalog.pg_statio_all_tables st
		ON st.relname = c.table_name AND st.schemaname = c.table_schema
	LEFT JOIN pg_catalog.pg_description pgd
		ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

// queryPrimaryKey fetches PK column names. $1 schema, $2 table.
const queryPrimaryKey = `
	SELECT a.attname
	FROM pg_index i
	JOIN pg_class cl ON cl.oid = i.indrelid
	JOIN pg_namespace n ON n.oid = cl.relnamespace
	JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	WHERE n.nspname = $1 AND cl.relname = $2 AND i.indisprimary
	ORDER BY array_position(i.indkey, a.attnum)`

// queryForeignKeys fetches declared FKs. $1 schema, $2 table.
const queryForeignKeys = `
	SELECT
		kcu.column_name,
		ccu.table_schema AS foreign_schema,
		ccu.table_name   AS foreign_table,
		ccu.column_name  AS foreign_column
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
	   AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON ccu.constraint_name = tc.constraint_name
	   AND ccu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1 AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`

// queryResolveSchema finds which schema holds a table. $1 table.
const queryResolveSchema = `
	SELECT t.table_schema
	FROM information_schema.tables t
	WHERE t.table_name = $1
		AND t.table_schema NOT IN ('pg_catalog', 'information_schema')
	ORDER BY t.table_schema
	LIMIT 1`
