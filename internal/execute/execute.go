// Package execute is the query execution transport: it submits printed
// backend SQL and bound values to the analytics database and returns
// result rows. AQL's own pipeline (parse through print) never depends on
// this package — it exists so a caller that wants compiled SQL actually
// run has one concrete, swappable way to run it.
package execute

import (
	"context"
)

// Row is a single result row, column name to decoded value.
type Row map[string]any

// Result is the outcome of submitting one compiled query.
type Result struct {
	Rows []Row
}

// Executor submits compiled SQL plus its bound placeholder values and
// returns the resulting rows. Implementations decide how bound values
// map onto their driver's own parameter syntax.
type Executor interface {
	Execute(ctx context.Context, sql string, bound map[string]any) (*Result, error)
	Close() error
}
