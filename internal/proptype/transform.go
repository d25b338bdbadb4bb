// Package proptype implements the post-resolution pass that decides how
// every property-bag leaf access must be coerced, consulting the
// property-definition catalog for each (owner, name) pair it finds.
package proptype

import (
	"context"
	"fmt"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/diag"
)

// Transform walks q (and every nested subquery reachable through its FROM
// chain) and assigns a Coercion to every resolved PropertyType leaf,
// mutating the tree in place. It must run after the resolver and before
// the join planner, since the planner bakes each rolled-up subquery's
// column coercions from the values this pass assigns.
func Transform(ctx context.Context, q *ast.SelectQuery, cat *catalog.Cache, tenantID int64) *diag.Diagnostics {
	diags := diag.New()
	transformQuery(ctx, q, cat, tenantID, diags)
	return diags
}

func transformQuery(ctx context.Context, q *ast.SelectQuery, cat *catalog.Cache, tenantID int64, diags *diag.Diagnostics) {
	if q == nil {
		return
	}
	for _, item := range q.Select {
		transformExpr(ctx, item, cat, tenantID, diags)
	}
	for link := q.From; link != nil; link = link.Next {
		if ref, ok := link.Target.(*ast.TableRef); ok && ref.Select != nil {
			transformQuery(ctx, ref.Select, cat, tenantID, diags)
		}
		if link.On != nil {
			transformExpr(ctx, link.On, cat, tenantID, diags)
		}
	}
	if q.Where != nil {
		transformExpr(ctx, q.Where, cat, tenantID, diags)
	}
	if q.Prewhere != nil {
		transformExpr(ctx, q.Prewhere, cat, tenantID, diags)
	}
	for _, g := range q.GroupBy {
		transformExpr(ctx, g, cat, tenantID, diags)
	}
	if q.Having != nil {
		transformExpr(ctx, q.Having, cat, tenantID, diags)
	}
	for _, o := range q.OrderBy {
		transformExpr(ctx, o.Expr, cat, tenantID, diags)
	}
}

// transformExpr recurses through e looking for Field leaves whose resolved
// symbol terminates in a PropertyType, and assigns that leaf's Coercion.
func transformExpr(ctx context.Context, e ast.Expr, cat *catalog.Cache, tenantID int64, diags *diag.Diagnostics) {
	switch n := e.(type) {
	case *ast.Field:
		transformField(ctx, n, cat, tenantID, diags)
	case *ast.Alias:
		transformExpr(ctx, n.Inner, cat, tenantID, diags)
	case *ast.Call:
		for _, a := range n.Args {
			transformExpr(ctx, a, cat, tenantID, diags)
		}
	case *ast.BinaryOp:
		transformExpr(ctx, n.Left, cat, tenantID, diags)
		transformExpr(ctx, n.Right, cat, tenantID, diags)
	case *ast.CompareOp:
		transformExpr(ctx, n.Left, cat, tenantID, diags)
		transformExpr(ctx, n.Right, cat, tenantID, diags)
	case *ast.And:
		for _, o := range n.Operands {
			transformExpr(ctx, o, cat, tenantID, diags)
		}
	case *ast.Or:
		for _, o := range n.Operands {
			transformExpr(ctx, o, cat, tenantID, diags)
		}
	case *ast.Not:
		transformExpr(ctx, n.Operand, cat, tenantID, diags)
	}
}

func transformField(ctx context.Context, f *ast.Field, cat *catalog.Cache, tenantID int64, diags *diag.Diagnostics) {
	pt, ok := f.Symbol.Terminal().(*ast.PropertyType)
	if !ok || len(pt.KeyPath) == 0 {
		return
	}

	key := catalog.Key{Owner: pt.Owner, Name: pt.KeyPath[0], TenantID: tenantID}
	declared, err := cat.PropertyType(ctx, key)
	if err != nil {
		diags.AddErrorAt(f.Pos(), diag.ErrConfiguration,
			fmt.Sprintf("property catalog lookup failed for %s.%s: %v", pt.Owner, key.Name, err))
		return
	}
	pt.Coercion = coercionFor(declared)
}

func coercionFor(pt catalog.PropertyType) ast.Coercion {
	switch pt {
	case catalog.TypeNumeric:
		return ast.CoerceNumeric
	case catalog.TypeDateTime:
		return ast.CoerceDateTime
	case catalog.TypeBoolean:
		return ast.CoerceBoolean
	default:
		return ast.CoerceNone
	}
}
