package extractor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"

	"github.com/corpora-dev/corpora/internal/pkg/dbutil"
)

const tableSampleRows = 10

// TableExtractor renders a database table into readable text for
// ingestion: shape, column descriptions and a handful of sample rows.
type TableExtractor struct {
	db *sql.DB
}

func NewTableExtractor(db *sql.DB) *TableExtractor {
	return &TableExtractor{db: db}
}

// ExtractTable produces the text rendition of one table. The table
// name comes from configuration, not user input, but is still quoted.
func (t *TableExtractor) ExtractTable(ctx context.Context, table string) (string, error) {
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(table))
	if err := t.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return "", fmt.Errorf("count rows of %s: %w", table, err)
	}

	where := map[string]interface{}{"_limit": []uint{0, tableSampleRows}}
	sqlStr, args, err := builder.BuildSelect(table, where, nil)
	if err != nil {
		return "", fmt.Errorf("build sample query for %s: %w", table, err)
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := t.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return "", fmt.Errorf("sample rows of %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("read columns of %s: %w", table, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return "", fmt.Errorf("read column types of %s: %w", table, err)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Data from: %s", table))
	parts = append(parts, fmt.Sprintf("Shape: %d rows, %d columns", total, len(columns)))
	parts = append(parts, "", "Columns:")
	for i, col := range columns {
		parts = append(parts, fmt.Sprintf("  %d. %s (%s)", i+1, col, strings.ToLower(types[i].DatabaseTypeName())))
	}
	parts = append(parts, "", "Sample data:")

	rowIdx := 0
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return "", fmt.Errorf("scan row of %s: %w", table, err)
		}
		rowIdx++
		cells := make([]string, 0, len(columns))
		for i, col := range columns {
			val := "N/A"
			if values[i].Valid {
				val = values[i].String
			}
			cells = append(cells, fmt.Sprintf("%s: %s", col, val))
		}
		parts = append(parts, fmt.Sprintf("Row %d: %s", rowIdx, strings.Join(cells, ", ")))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate rows of %s: %w", table, err)
	}
	return strings.Join(parts, "\n"), nil
}
