package port

import "context"

// TableInfo is a summary row for list_tables.
type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	RowEstimate int64  `json:"row_estimate"`
	ColumnCount int    `json:"column_count"`
	Comment     string `json:"comment,omitempty"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// TableDetail is the full structure of a single table.
type TableDetail struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Comment     string       `json:"comment,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// ForeignKey describes a declared FK relationship.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
	ReferencesSchema string `json:"references_schema,omitempty"`
}

// SchemaExplorer reads database structure. SchemaContext renders the compact
// description embedded in the generation prompt; restricted tables are
// excluded so the oracle never even sees them.
type SchemaExplorer interface {
	SchemaContext(ctx context.Context) (string, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, table string) (*TableDetail, error)
}
