package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Explorer reads database structure for the MCP tools and renders the schema
// context embedded in generation prompts. Tables on the rule blocklist are
// filtered out everywhere so the oracle never learns they exist.
type Explorer struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
	rules   domain.RuleSet

	contextOnce sync.Once
	contextStr  string
	contextErr  error
}

func NewExplorer(pool *pgxpool.Pool, schemas []string, rules domain.RuleSet) *Explorer {
	return &Explorer{pool: pool, schemas: schemas, rules: rules}
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter(e.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(
			&t.Schema, &t.Name, &t.Type, &t.RowEstimate, &t.ColumnCount, &t.Comment,
		); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		if e.rules.TableBlocked(t.Schema, t.Name) {
			continue
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	if schema == "" {
		var err error
		schema, err = e.resolveSchema(ctx, tableName)
		if err != nil {
			return nil, err
		}
	}
	if e.rules.TableBlocked(schema, tableName) {
		return nil, fmt.Errorf("table %q not found", tableName)
	}

	detail := &port.TableDetail{Schema: schema, Name: tableName}

	var err error
	if detail.Columns, err = e.fetchColumns(ctx, schema, tableName); err != nil {
		return nil, err
	}
	if len(detail.Columns) == 0 {
		return nil, fmt.Errorf("table %q not found", tableName)
	}
	if detail.PrimaryKey, err = e.fetchPrimaryKey(ctx, schema, tableName); err != nil {
		return nil, err
	}
	if detail.ForeignKeys, err = e.fetchForeignKeys(ctx, schema, tableName); err != nil {
		return nil, err
	}
	return detail, nil
}

// SchemaContext renders the compact table/column description embedded in the
// generation prompt. Built once per process; restart to refresh.
func (e *Explorer) SchemaContext(ctx context.Context) (string, error) {
	e.contextOnce.Do(func() {
		e.contextStr, e.contextErr = e.buildSchemaContext(ctx)
	})
	return e.contextStr, e.contextErr
}

func (e *Explorer) buildSchemaContext(ctx context.Context) (string, error) {
	filter, args := schemaFilter(e.schemas, "c.table_schema", 1)
	query := fmt.Sprintf(queryColumns, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("reading schema columns: %w", err)
	}
	defer rows.Close()

	type col struct {
		name, dataType, comment string
		nullable                bool
	}
	var order []string
	tables := make(map[string][]col)

	for rows.Next() {
		var schema, table string
		var c col
		var def string
		if err := rows.Scan(&schema, &table, &c.name, &c.dataType, &c.nullable, &def, &c.comment); err != nil {
			return "", fmt.Errorf("scanning column row: %w", err)
		}
		if e.rules.TableBlocked(schema, table) {
			continue
		}
		key := table
		if schema != "public" {
			key = schema + "." + table
		}
		if _, seen := tables[key]; !seen {
			order = append(order, key)
		}
		tables[key] = append(tables[key], c)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating schema columns: %w", err)
	}

	if len(order) == 0 {
		return "No accessible tables found.", nil
	}

	var b strings.Builder
	b.WriteString("Available database tables and columns:\n")
	for _, key := range order {
		fmt.Fprintf(&b, "\nTable: %s\n", key)
		for _, c := range tables[key] {
			fmt.Fprintf(&b, "  - %s [%s]", c.name, c.dataType)
			if c.nullable {
				b.WriteString(" (nullable)")
			}
			if c.comment != "" {
				fmt.Fprintf(&b, " -- %s", c.comment)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (e *Explorer) resolveSchema(ctx context.Context, tableName string) (string, error) {
	var schema string
	err := e.pool.QueryRow(ctx, queryResolveSchema, tableName).Scan(&schema)
	if err != nil {
		return "", fmt.Errorf("table %q not found", tableName)
	}
	return schema, nil
}

func (e *Explorer) fetchColumns(ctx context.Context, schema, tableName string) ([]port.ColumnInfo, error) {
	rows, err := e.pool.Query(ctx, queryTableColumns, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer rows.Close()

	var cols []port.ColumnInfo
	for rows.Next() {
		var c port.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default, &c.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (e *Explorer) fetchPrimaryKey(ctx context.Context, schema, tableName string) ([]string, error) {
	rows, err := e.pool.Query(ctx, queryPrimaryKey, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching primary key: %w", err)
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning primary key column: %w", err)
		}
		pk = append(pk, name)
	}
	return pk, rows.Err()
}

func (e *Explorer) fetchForeignKeys(ctx context.Context, schema, tableName string) ([]port.ForeignKey, error) {
	rows, err := e.pool.Query(ctx, queryForeignKeys, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []port.ForeignKey
	for rows.Next() {
		var fk port.ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencesSchema, &fk.ReferencesTable, &fk.ReferencesColumn); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
