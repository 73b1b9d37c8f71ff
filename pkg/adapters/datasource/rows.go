package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// RewritePlaceholders converts $1, $2, ... placeholders to a driver's native
// form, e.g. @p1 for SQL Server or ?1 for SQLite. Text inside quoted
// identifiers ("..", [..], `..`) and string literals ('..') is copied
// unchanged, so a column named "cost$1" keeps its name.
func RewritePlaceholders(query string, native func(n int) string) string {
	var sb strings.Builder
	sb.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch c {
		case '"', '\'', '`', '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end := quotedSpanEnd(query, i+1, closer)
			sb.WriteString(query[i:end])
			i = end
		case '$':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(query[i+1 : j])
			if j == i+1 || err != nil {
				sb.WriteByte(c)
				i++
				continue
			}
			sb.WriteString(native(n))
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// quotedSpanEnd returns the index just past the closing quote of a span
// that starts at from. A doubled closer is an escaped quote. An unterminated
// span runs to the end of the query.
func quotedSpanEnd(query string, from int, closer byte) int {
	for i := from; i < len(query); i++ {
		if query[i] != closer {
			continue
		}
		if i+1 < len(query) && query[i+1] == closer {
			i++
			continue
		}
		return i + 1
	}
	return len(query)
}

// CollectSQLRows reads a database/sql result set into a QueryExecutionResult.
// convert, when non-nil, receives each raw value with its column's database
// type name before NormalizeValue runs.
func CollectSQLRows(rows *sql.Rows, convert func(dbType string, v any) any) (*QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = ColumnInfo{
			Name: colName,
			Type: columnTypes[i].DatabaseTypeName(),
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, val := range values {
			if convert != nil && val != nil {
				val = convert(columns[i].Type, val)
			}
			values[i] = NormalizeValue(val)
		}
		resultRows = append(resultRows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// NormalizeValue maps driver-specific scalars onto the small set of Go types
// the rest of the service understands: int64, float64, string, []byte, bool,
// time.Time and nil. NaN and infinite floats become nil since JSON cannot
// carry them.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int64(val)
	case float32:
		return finite(float64(val))
	case float64:
		return finite(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finite(f.Float64)
	case [16]byte:
		// pgx decodes uuid columns as [16]byte
		return uuid.UUID(val).String()
	default:
		return v
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
