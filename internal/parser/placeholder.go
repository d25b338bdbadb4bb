package parser

import (
	"fmt"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
)

// Substitute replaces every Placeholder node reachable from q with the
// caller-supplied expression named by its Name, mutating q in place. It
// runs before resolution: a placeholder can stand in for anything the
// grammar allows in its position, including a Field the resolver still
// needs to bind against a schema.
func Substitute(q *ast.SelectQuery, values map[string]ast.Expr) *diag.Diagnostics {
	diags := diag.New()
	substituteQuery(q, values, diags)
	return diags
}

func substituteQuery(q *ast.SelectQuery, values map[string]ast.Expr, diags *diag.Diagnostics) {
	if q == nil {
		return
	}
	for i, item := range q.Select {
		q.Select[i] = substituteExpr(item, values, diags)
	}
	for link := q.From; link != nil; link = link.Next {
		if ref, ok := link.Target.(*ast.TableRef); ok && ref.Select != nil {
			substituteQuery(ref.Select, values, diags)
		}
		if link.On != nil {
			link.On = substituteExpr(link.On, values, diags)
		}
	}
	if q.Where != nil {
		q.Where = substituteExpr(q.Where, values, diags)
	}
	if q.Prewhere != nil {
		q.Prewhere = substituteExpr(q.Prewhere, values, diags)
	}
	for i, g := range q.GroupBy {
		q.GroupBy[i] = substituteExpr(g, values, diags)
	}
	if q.Having != nil {
		q.Having = substituteExpr(q.Having, values, diags)
	}
	for _, o := range q.OrderBy {
		o.Expr = substituteExpr(o.Expr, values, diags)
	}
	if q.Limit != nil {
		q.Limit = substituteExpr(q.Limit, values, diags)
	}
	if q.Offset != nil {
		q.Offset = substituteExpr(q.Offset, values, diags)
	}
}

// substituteExpr rewrites e and its children, returning the replacement
// for e itself (only ever non-e when e is a Placeholder).
func substituteExpr(e ast.Expr, values map[string]ast.Expr, diags *diag.Diagnostics) ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Placeholder:
		v, ok := values[n.Name]
		if !ok {
			diags.AddErrorAt(n.Pos(), diag.ErrUnknownPlaceholder,
				fmt.Sprintf("unknown placeholder %q", n.Name))
			return n
		}
		return v
	case *ast.Alias:
		n.Inner = substituteExpr(n.Inner, values, diags)
		return n
	case *ast.Call:
		for i, a := range n.Args {
			n.Args[i] = substituteExpr(a, values, diags)
		}
		return n
	case *ast.BinaryOp:
		n.Left = substituteExpr(n.Left, values, diags)
		n.Right = substituteExpr(n.Right, values, diags)
		return n
	case *ast.CompareOp:
		n.Left = substituteExpr(n.Left, values, diags)
		n.Right = substituteExpr(n.Right, values, diags)
		return n
	case *ast.And:
		for i, o := range n.Operands {
			n.Operands[i] = substituteExpr(o, values, diags)
		}
		return n
	case *ast.Or:
		for i, o := range n.Operands {
			n.Operands[i] = substituteExpr(o, values, diags)
		}
		return n
	case *ast.Not:
		n.Operand = substituteExpr(n.Operand, values, diags)
		return n
	default:
		// Constant, Field, Asterisk carry no child expressions to rewrite.
		return e
	}
}
