// Package resolver performs symbol and type resolution over a parsed
// SelectQuery: binding FROM/JOIN aliases, walking dotted Field chains
// through the schema registry (scalar columns, JSON property bags, lazy
// joins, virtual fields), and recording the distinct materialization
// paths a query's lazy-join hops require so the join planner can
// synthesize the right subqueries afterward.
package resolver

import (
	"fmt"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/schema"
)

const maxNestingDepth = 5

// Resolver carries the state threaded through one Resolve call: the
// schema it resolves against and the diagnostics it accumulates.
type Resolver struct {
	registry *schema.Registry
	diags    *diag.Diagnostics
	depth    int
}

// Resolve walks query in place, attaching a Type to every Expr node, a
// Symbol to every Field node, and appending lazy-join MaterializationPaths
// to each SelectQuery it touches. It returns every diagnostic raised
// along the way; callers should stop before the property-type transform
// and join planner when diags.HasErrors().
func Resolve(query *ast.SelectQuery, registry *schema.Registry) *diag.Diagnostics {
	r := &Resolver{registry: registry, diags: diag.New()}
	r.resolveSelectQuery(query)
	return r.diags
}

func (r *Resolver) rangeOf(n ast.Node) diag.Range {
	return diag.Range{Start: n.Pos(), End: n.End()}
}

func (r *Resolver) errorf(n ast.Node, code, format string, args ...interface{}) {
	r.diags.AddError(r.rangeOf(n), code, fmt.Sprintf(format, args...))
}

func (r *Resolver) resolveSelectQuery(q *ast.SelectQuery) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxNestingDepth {
		r.errorf(q, diag.ErrNestedTooDeep, "query nesting exceeds the maximum depth of %d", maxNestingDepth)
		return
	}

	scope := newScope()

	r.resolveFromChain(q, q.From, scope)

	q.Select = r.expandSelectList(q, scope)
	for _, item := range q.Select {
		r.resolveExpr(q, item, scope, ModeNoAliases, false)
		if a, ok := item.(*ast.Alias); ok {
			scope.addSelectAlias(a.Name, a.NodeType())
		}
	}

	if q.Where != nil {
		r.resolveExpr(q, q.Where, scope, ModeNoAliases, true)
	}
	if q.Prewhere != nil {
		r.resolveExpr(q, q.Prewhere, scope, ModeNoAliases, true)
	}
	for _, g := range q.GroupBy {
		r.resolveExpr(q, g, scope, ModeNoAliases, true)
	}
	if q.Having != nil {
		r.resolveExpr(q, q.Having, scope, ModeAliasesVisible, false)
	}
	for _, o := range q.OrderBy {
		r.resolveExpr(q, o.Expr, scope, ModeAliasesVisible, false)
	}
	if q.Limit != nil {
		r.resolveExpr(q, q.Limit, scope, ModeNoAliases, false)
	}
	if q.Offset != nil {
		r.resolveExpr(q, q.Offset, scope, ModeNoAliases, false)
	}

	q.SetType(&ast.SelectQueryType{Columns: outputColumns(q.Select)})
}

// resolveFromChain binds every FROM/JOIN link's alias to a TableType,
// registering it in scope and resolving each link's ON constraint against
// everything bound so far (but never against SELECT aliases).
func (r *Resolver) resolveFromChain(q *ast.SelectQuery, link *ast.JoinExpr, scope *Scope) {
	for link != nil {
		ref, ok := link.Target.(*ast.TableRef)
		if !ok {
			r.errorf(link, diag.ErrInternal, "join target is not a table reference")
			return
		}

		var tt *ast.TableType
		switch {
		case ref.Name != "":
			stbl, ok := r.registry.Table(ref.Name)
			if !ok {
				r.errorf(ref, diag.ErrConfiguration, "unknown table %q", ref.Name)
				return
			}
			alias := link.Alias
			if alias == "" {
				alias = stbl.Name
			}
			tt = &ast.TableType{Name: stbl.Name, Physical: stbl.Physical, Alias: alias}
		case ref.Select != nil:
			r.resolveSelectQuery(ref.Select)
			alias := link.Alias
			if alias == "" {
				alias = "subquery"
			}
			sqt, _ := ref.Select.NodeType().(*ast.SelectQueryType)
			tt = &ast.TableType{Name: alias, Alias: alias, Select: sqt}
		default:
			r.errorf(ref, diag.ErrInternal, "table reference names neither a table nor a subquery")
			return
		}

		link.SetType(tt)
		ref.SetType(tt)
		scope.addTable(tt.Alias, tt)

		if link.On != nil {
			r.resolveExpr(q, link.On, scope, ModeNoAliases, false)
		}

		link = link.Next
	}
}

// expandSelectList replaces every bare/qualified Asterisk in q.Select with
// the concrete Field nodes it stands for, using the tables bound in scope.
// An Asterisk that survives this pass anywhere else in the tree is an
// IllegalWildcard.
func (r *Resolver) expandSelectList(q *ast.SelectQuery, scope *Scope) []ast.Expr {
	out := make([]ast.Expr, 0, len(q.Select))
	for _, item := range q.Select {
		star, ok := item.(*ast.Asterisk)
		if !ok {
			out = append(out, item)
			continue
		}
		if star.Qualifier == "" {
			for _, te := range scope.visibleTables() {
				out = append(out, r.expandTableFields(te)...)
			}
			continue
		}
		tt, ok := scope.lookupAlias(star.Qualifier)
		if !ok {
			r.errorf(star, diag.ErrNotFound, "unknown table %q", star.Qualifier)
			continue
		}
		out = append(out, r.expandTableFields(tableEntry{alias: star.Qualifier, typ: tt})...)
	}
	return out
}

func (r *Resolver) expandTableFields(te tableEntry) []ast.Expr {
	if te.typ.Select != nil {
		var out []ast.Expr
		for _, col := range te.typ.Select.Columns {
			f := &ast.Field{Chain: []string{col}}
			ft := &ast.FieldType{Table: te.typ, Name: col, Column: col, Scalar: ast.Unknown{}}
			f.Symbol = ast.Symbol{Path: []ast.Type{ft}}
			f.SetType(ft)
			out = append(out, f)
		}
		return out
	}
	stbl, ok := r.registry.Table(te.typ.Name)
	if !ok {
		return nil
	}
	var out []ast.Expr
	for _, name := range sortedFieldNames(stbl) {
		fld := stbl.Fields[name]
		f := &ast.Field{Chain: []string{name}}
		ft := &ast.FieldType{Table: te.typ, Name: fld.Name, Column: fld.Column, Scalar: fld.Kind.Type()}
		f.Symbol = ast.Symbol{Path: []ast.Type{ft}}
		f.SetType(ft)
		out = append(out, f)
	}
	return out
}

func sortedFieldNames(t *schema.Table) []string {
	names := make([]string, 0, len(t.Fields))
	for n := range t.Fields {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// outputColumns derives the SELECT-list's output column names: an
// explicit Alias name, or the terminal segment of a Field's chain, or a
// Call's function name.
func outputColumns(items []ast.Expr) []string {
	cols := make([]string, 0, len(items))
	for _, item := range items {
		switch e := item.(type) {
		case *ast.Alias:
			cols = append(cols, e.Name)
		case *ast.Field:
			cols = append(cols, e.Chain[len(e.Chain)-1])
		case *ast.Call:
			cols = append(cols, e.Name)
		default:
			cols = append(cols, "")
		}
	}
	return cols
}
