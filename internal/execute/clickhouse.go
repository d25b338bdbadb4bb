package execute

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseExecutor runs compiled backend SQL against a ClickHouse
// cluster. The printer's bound values use the `%(name)s` placeholder
// convention from spec.md §4.5; ClickHouse's own named-parameter syntax
// is `{name}`, so placeholders are rewritten once per Execute call.
type ClickHouseExecutor struct {
	conn clickhouse.Conn
}

// ClickHouseConfig carries the connection settings for NewClickHouseExecutor.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// NewClickHouseExecutor opens a connection pool to the given ClickHouse
// cluster. It does not issue any query itself; the caller decides when to
// Close it.
func NewClickHouseExecutor(cfg ClickHouseConfig) (*ClickHouseExecutor, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return &ClickHouseExecutor{conn: conn}, nil
}

var placeholderPattern = regexp.MustCompile(`%\(([a-zA-Z0-9_]+)\)s`)

// rewritePlaceholders turns every `%(name)s` placeholder in sql into
// ClickHouse's `{name}` named-parameter syntax.
func rewritePlaceholders(sql string) string {
	return placeholderPattern.ReplaceAllString(sql, "{$1}")
}

// Execute submits sql (as printed by internal/printer) along with its
// bound values and collects every result row into memory.
func (e *ClickHouseExecutor) Execute(ctx context.Context, sql string, bound map[string]any) (*Result, error) {
	args := make([]any, 0, len(bound))
	for name, value := range bound {
		args = append(args, clickhouse.Named(name, value))
	}

	rows, err := e.conn.Query(ctx, rewritePlaceholders(sql), args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	result := &Result{}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Close releases the underlying connection pool.
func (e *ClickHouseExecutor) Close() error {
	return e.conn.Close()
}

var _ Executor = (*ClickHouseExecutor)(nil)
