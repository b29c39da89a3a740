package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ColumnInfo describes one column sampled from a one-row probe
type ColumnInfo struct {
	Name     string
	TypeHint string
}

// QueryProfile holds metadata about a query's result set, gathered once per
// transfer to size the chunk plan and drive progress estimates
type QueryProfile struct {
	SourceQuery   string
	RowCount      int
	SampleColumns []ColumnInfo
}

// QueryExecutor runs SQL statements through the connection manager and
// returns rows in a driver-agnostic shape
type QueryExecutor struct {
	conn   *ConnectionManager
	logger *slog.Logger
}

// NewQueryExecutor creates a query executor bound to a connection manager
func NewQueryExecutor(conn *ConnectionManager, logger *slog.Logger) *QueryExecutor {
	return &QueryExecutor{
		conn:   conn,
		logger: logger,
	}
}

// Test verifies the session with a trivial probe query
func (e *QueryExecutor) Test(ctx context.Context) error {
	db, err := e.conn.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: test query failed: %w", ErrConnection, err)
	}
	return nil
}

// Profile issues a count query and a one-row probe for the given query
func (e *QueryExecutor) Profile(ctx context.Context, query string) (*QueryProfile, error) {
	db, err := e.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_subquery", query)
	var rowCount int
	if err := db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		return nil, fmt.Errorf("failed to count query rows: %w", err)
	}

	columns, err := e.probeColumns(ctx, query)
	if err != nil {
		return nil, err
	}

	e.logger.Debug(fmt.Sprintf("Query profiled: %d rows, %d columns", rowCount, len(columns)))

	return &QueryProfile{
		SourceQuery:   query,
		RowCount:      rowCount,
		SampleColumns: columns,
	}, nil
}

// probeColumns fetches a single row to learn the column shape
func (e *QueryExecutor) probeColumns(ctx context.Context, query string) ([]ColumnInfo, error) {
	db, err := e.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	probeQuery := query + " LIMIT 1"
	rows, err := db.QueryContext(ctx, probeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to probe query columns: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	columns := make([]ColumnInfo, len(types))
	for i, t := range types {
		columns[i] = ColumnInfo{
			Name:     t.Name(),
			TypeHint: t.DatabaseTypeName(),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to probe query columns: %w", err)
	}
	return columns, nil
}

// Execute runs a query and returns all rows
func (e *QueryExecutor) Execute(ctx context.Context, query string) ([]map[string]interface{}, error) {
	db, err := e.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(ctx, rows)
}

// ExecuteBatched runs a query pulling rows in fixed-size batches. The result
// is identical to Execute; batching only bounds how much is decoded per
// scan pass for very wide rows.
func (e *QueryExecutor) ExecuteBatched(ctx context.Context, query string, batchSize int) ([]map[string]interface{}, error) {
	db, err := e.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []map[string]interface{}
	batch := make([]map[string]interface{}, 0, batchSize)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)

		if len(batch) >= batchSize {
			result = append(result, batch...)
			e.logger.Debug(fmt.Sprintf("Fetched batch of %d rows (%d total)", len(batch), len(result)))
			batch = batch[:0]
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	result = append(result, batch...)
	return result, nil
}

// scanRows decodes every row into a column-name keyed map
func scanRows(ctx context.Context, rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []map[string]interface{}
	rowNum := 0
	for rows.Next() {
		// Check for cancellation periodically
		if rowNum%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rowNum++

		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return result, nil
}

// scanRow decodes the current row. Byte slices become strings so every
// backend variant yields the same shape.
func scanRow(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := rows.Scan(pointers...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}
