package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// materializeRows drains pgx.Rows into column names (database order) and a
// slice of maps keyed by column name.
func materializeRows(rows pgx.Rows) ([]string, []map[string]any, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	var result []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, name := range columns {
			row[name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	return columns, result, nil
}
