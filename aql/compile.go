// Package aql is the public driver for the compiler: it wires parse,
// placeholder substitution, resolution, property-type coercion, join
// planning, and printing into one entry point.
package aql

import (
	"context"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/parser"
	"github.com/aql-lang/aql/internal/planner"
	"github.com/aql-lang/aql/internal/printer"
	"github.com/aql-lang/aql/internal/proptype"
	"github.com/aql-lang/aql/internal/resolver"
	"github.com/aql-lang/aql/internal/schema"
)

// Diagnostic is the public, file-position-free shape of a compiler
// diagnostic: aql.Compile always compiles a single in-memory query, so
// there is no filename to carry.
type Diagnostic struct {
	Line     int
	Column   int
	Severity string
	Code     string
	Message  string
}

// Options carries every per-compile input beyond the query text itself.
type Options struct {
	TenantID     int64
	Catalog      catalog.Catalog
	Schema       schema.Options
	DefaultLimit int64
	// Placeholders supplies the AST fragments substituted for `{name}`
	// placeholders in the query text before resolution.
	Placeholders map[string]ast.Expr
}

// CompileResult is the result of one Compile call.
type CompileResult struct {
	BackendSQL  string
	AQLSQL      string
	BoundValues map[string]any
	Diagnostics []Diagnostic
	HasErrors   bool
}

// Compile runs the full pipeline over src: parse, substitute, resolve,
// coerce property types, plan joins, print. It aborts at the first stage
// that produces an error, mirroring the teacher's `forge.Compile`
// stage-by-stage diagnostic accumulation.
func Compile(ctx context.Context, src string, opts Options) *CompileResult {
	result := &CompileResult{}

	q, diags := parser.Parse(src)
	if collect(result, diags) {
		return result
	}

	if len(opts.Placeholders) > 0 {
		if collect(result, parser.Substitute(q, opts.Placeholders)) {
			return result
		}
	}

	registry := schema.Build(opts.Schema)
	if collect(result, resolver.Resolve(q, registry)) {
		return result
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.NewMemoryCatalog(nil)
	}
	cache := catalog.NewCache(cat)
	if collect(result, proptype.Transform(ctx, q, cache, opts.TenantID)) {
		return result
	}

	if collect(result, planner.Plan(q, registry)) {
		return result
	}

	out, printDiags := printer.Print(q, printer.Config{
		TenantID:     opts.TenantID,
		DefaultLimit: opts.DefaultLimit,
	})
	if collect(result, printDiags) {
		return result
	}

	result.BackendSQL = out.BackendSQL
	result.AQLSQL = out.AQLSQL
	result.BoundValues = out.BoundValues
	return result
}

// Check runs only as far as resolution and property-type coercion,
// reporting diagnostics without producing SQL. It is the backend for
// `aqlc check`.
func Check(ctx context.Context, src string, opts Options) *CompileResult {
	result := &CompileResult{}

	q, diags := parser.Parse(src)
	if collect(result, diags) {
		return result
	}
	if len(opts.Placeholders) > 0 {
		if collect(result, parser.Substitute(q, opts.Placeholders)) {
			return result
		}
	}

	registry := schema.Build(opts.Schema)
	if collect(result, resolver.Resolve(q, registry)) {
		return result
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.NewMemoryCatalog(nil)
	}
	cache := catalog.NewCache(cat)
	collect(result, proptype.Transform(ctx, q, cache, opts.TenantID))
	return result
}

// collect appends diags's diagnostics onto result and reports whether any
// of them is an error.
func collect(result *CompileResult, diags *diag.Diagnostics) bool {
	for _, d := range diags.All() {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Line:     d.Range.Start.Line,
			Column:   d.Range.Start.Column,
			Severity: d.Severity.String(),
			Code:     d.Code,
			Message:  d.Message,
		})
	}
	if diags.HasErrors() {
		result.HasErrors = true
	}
	return result.HasErrors
}
