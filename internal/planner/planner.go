// Package planner turns the lazy-join materialization paths a resolved
// query recorded into concrete INNER JOIN subqueries appended to the
// query's FROM chain, one per distinct hop, in first-reference order.
package planner

import (
	"fmt"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/schema"
)

// Plan materializes every MaterializationRequest recorded on q (and on any
// nested subquery reachable through its FROM chain) into real JoinExpr
// links, mutating the tree in place. It must run after the resolver and
// the property-type transform, since the column coercions it bakes into
// each rolled-up subquery come from the already-assigned PropertyType
// Coercion values.
func Plan(q *ast.SelectQuery, registry *schema.Registry) *diag.Diagnostics {
	diags := diag.New()
	planQuery(q, registry, diags)
	return diags
}

func planQuery(q *ast.SelectQuery, registry *schema.Registry, diags *diag.Diagnostics) {
	for link := q.From; link != nil; link = link.Next {
		if ref, ok := link.Target.(*ast.TableRef); ok && ref.Select != nil {
			planQuery(ref.Select, registry, diags)
		}
	}

	if q.From == nil {
		return
	}
	tail := q.From
	for tail.Next != nil {
		tail = tail.Next
	}

	for _, path := range q.MaterializationRequests {
		if aliasBound(q.From, path.Alias()) {
			continue
		}
		lj, ok := lazyJoinFor(registry, q, path)
		if !ok {
			diags.AddErrorAt(q.Pos(), diag.ErrConfiguration, fmt.Sprintf("no lazy join registered for materialization path %q", path.Alias()))
			continue
		}
		cols := columnsForPath(q, path)
		join := lj.Strategy(prevAlias(path), path.Alias(), cols)
		tail.Next = join
		tail = join
	}
}

// prevAlias is the alias a hop's ON-condition reads its join key from: the
// original FROM alias for a path's first hop, or the prior hop's own
// materialized alias for every hop after that.
func prevAlias(path ast.MaterializationPath) string {
	if len(path.Chain) <= 1 {
		return path.Anchor
	}
	return ast.MaterializationPath{Anchor: path.Anchor, Chain: path.Chain[:len(path.Chain)-1]}.Alias()
}

// lazyJoinFor walks the schema from the path's anchor table through each
// hop name to find the schema.LazyJoin declaration the final hop names.
func lazyJoinFor(registry *schema.Registry, q *ast.SelectQuery, path ast.MaterializationPath) (schema.LazyJoin, bool) {
	anchorTT := findBoundTable(q.From, path.Anchor)
	if anchorTT == nil {
		return schema.LazyJoin{}, false
	}
	tableName := anchorTT.Name

	var lj schema.LazyJoin
	for i, hop := range path.Chain {
		stbl, ok := registry.Table(tableName)
		if !ok {
			return schema.LazyJoin{}, false
		}
		lj, ok = stbl.LazyJoins[hop]
		if !ok {
			return schema.LazyJoin{}, false
		}
		if i < len(path.Chain)-1 {
			tableName = lj.Target
		}
	}
	return lj, true
}

// aliasBound reports whether some link in the FROM chain already carries
// alias, whether bound by the resolver (a user-written FROM/JOIN) or by an
// earlier Plan call over the same tree (a previously materialized hop) —
// this is what keeps a second Plan pass from duplicating joins.
func aliasBound(link *ast.JoinExpr, alias string) bool {
	for ; link != nil; link = link.Next {
		if link.Alias == alias {
			return true
		}
	}
	return false
}

func findBoundTable(link *ast.JoinExpr, alias string) *ast.TableType {
	for ; link != nil; link = link.Next {
		if tt, ok := link.NodeType().(*ast.TableType); ok && tt.Alias == alias {
			return tt
		}
	}
	return nil
}

// columnsForPath scans every expression in q (but not into nested
// subqueries, which have their own materialization namespace) for Field
// nodes whose resolved Symbol.Path crosses path, collecting the column or
// property-key immediately beyond that hop so the rolled-up subquery knows
// what to project. Order is first-appearance; duplicates are dropped.
func columnsForPath(q *ast.SelectQuery, path ast.MaterializationPath) []schema.Column {
	var cols []schema.Column
	seen := map[string]bool{}
	add := func(c schema.Column) {
		key := c.OutputName()
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		cols = append(cols, c)
	}

	for _, e := range queryExprs(q) {
		walkFields(e, func(f *ast.Field) {
			for i, t := range f.Symbol.Path {
				lj, ok := t.(*ast.LazyJoinType)
				if !ok || lj.Path.Anchor != path.Anchor || !equalChains(lj.Path.Chain, path.Chain) {
					continue
				}
				if i+1 >= len(f.Symbol.Path) {
					continue
				}
				switch next := f.Symbol.Path[i+1].(type) {
				case *ast.FieldType:
					add(schema.Column{Plain: next.Name})
				case *ast.PropertyType:
					key := ""
					if len(next.KeyPath) > 0 {
						key = next.KeyPath[0]
					}
					add(schema.Column{PropertyKey: key, Coercion: next.Coercion})
				}
			}
		})
	}
	return cols
}

// queryExprs lists every top-level expression belonging to q itself (not
// to any nested subquery's own Select list).
func queryExprs(q *ast.SelectQuery) []ast.Expr {
	var out []ast.Expr
	out = append(out, q.Select...)
	for link := q.From; link != nil; link = link.Next {
		if link.On != nil {
			out = append(out, link.On)
		}
	}
	if q.Where != nil {
		out = append(out, q.Where)
	}
	if q.Prewhere != nil {
		out = append(out, q.Prewhere)
	}
	out = append(out, q.GroupBy...)
	if q.Having != nil {
		out = append(out, q.Having)
	}
	for _, o := range q.OrderBy {
		out = append(out, o.Expr)
	}
	return out
}

// walkFields recurses through compound expressions to call visit on every
// Field leaf it finds.
func walkFields(e ast.Expr, visit func(*ast.Field)) {
	switch n := e.(type) {
	case *ast.Field:
		visit(n)
	case *ast.Alias:
		walkFields(n.Inner, visit)
	case *ast.Call:
		for _, a := range n.Args {
			walkFields(a, visit)
		}
	case *ast.BinaryOp:
		walkFields(n.Left, visit)
		walkFields(n.Right, visit)
	case *ast.CompareOp:
		walkFields(n.Left, visit)
		walkFields(n.Right, visit)
	case *ast.And:
		for _, o := range n.Operands {
			walkFields(o, visit)
		}
	case *ast.Or:
		for _, o := range n.Operands {
			walkFields(o, visit)
		}
	case *ast.Not:
		walkFields(n.Operand, visit)
	}
}

func equalChains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
