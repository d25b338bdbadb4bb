package resolver

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/schema"
)

// resolveExpr dispatches on the concrete Expr type. inAggregateContext is
// true while resolving WHERE/PREWHERE/GROUP BY, where an aggregate Call is
// an IllegalAggregate error.
func (r *Resolver) resolveExpr(q *ast.SelectQuery, e ast.Expr, scope *Scope, mode Visibility, inAggregateContext bool) {
	switch n := e.(type) {
	case *ast.Constant:
		n.SetType(constantType(n.Value))
	case *ast.Field:
		r.resolveField(q, n, scope, mode)
	case *ast.Alias:
		r.resolveExpr(q, n.Inner, scope, mode, inAggregateContext)
		n.SetType(&ast.FieldAliasType{Name: n.Name, Inner: n.Inner.NodeType()})
	case *ast.Call:
		r.resolveCall(q, n, scope, mode, inAggregateContext)
	case *ast.BinaryOp:
		r.resolveExpr(q, n.Left, scope, mode, inAggregateContext)
		r.resolveExpr(q, n.Right, scope, mode, inAggregateContext)
		n.SetType(arithResultType(n.Left.NodeType(), n.Right.NodeType()))
	case *ast.CompareOp:
		r.resolveExpr(q, n.Left, scope, mode, inAggregateContext)
		r.resolveExpr(q, n.Right, scope, mode, inAggregateContext)
		n.SetType(ast.Boolean{})
	case *ast.And:
		for _, op := range n.Operands {
			r.resolveExpr(q, op, scope, mode, inAggregateContext)
		}
		n.SetType(ast.Boolean{})
	case *ast.Or:
		for _, op := range n.Operands {
			r.resolveExpr(q, op, scope, mode, inAggregateContext)
		}
		n.SetType(ast.Boolean{})
	case *ast.Not:
		r.resolveExpr(q, n.Operand, scope, mode, inAggregateContext)
		n.SetType(ast.Boolean{})
	case *ast.Asterisk:
		r.errorf(n, diag.ErrIllegalWildcard, "`*` is only allowed as a bare SELECT item")
	case *ast.Placeholder:
		r.errorf(n, diag.ErrInternal, "unsubstituted placeholder %q reached the resolver", n.Name)
	default:
		r.errorf(e, diag.ErrInternal, "resolver: unhandled expression node %T", e)
	}
}

func constantType(v interface{}) ast.Type {
	switch v.(type) {
	case int64, int:
		return ast.Integer{}
	case float64:
		return ast.Float{}
	case bool:
		return ast.Boolean{}
	case string:
		return ast.String{}
	case uuid.UUID:
		return ast.UUID{}
	default:
		return ast.Unknown{}
	}
}

func arithResultType(l, r ast.Type) ast.Type {
	if _, ok := l.(ast.Float); ok {
		return ast.Float{}
	}
	if _, ok := r.(ast.Float); ok {
		return ast.Float{}
	}
	if isInteger(l) && isInteger(r) {
		return ast.Integer{}
	}
	return ast.Float{}
}

func isInteger(t ast.Type) bool {
	_, ok := t.(ast.Integer)
	return ok
}

func (r *Resolver) resolveCall(q *ast.SelectQuery, c *ast.Call, scope *Scope, mode Visibility, inAggregateContext bool) {
	sig, ok := functionTable[c.Name]
	if !ok {
		r.errorf(c, diag.ErrUnknownFunction, "unknown function %q", c.Name)
		for _, a := range c.Args {
			r.resolveExpr(q, a, scope, mode, inAggregateContext)
		}
		c.SetType(ast.Unknown{})
		return
	}
	if sig.aggregate && inAggregateContext {
		r.errorf(c, diag.ErrIllegalAggregate, "aggregate function %q is not allowed here", c.Name)
	}
	if len(c.Args) < sig.minArgs || (sig.maxArgs >= 0 && len(c.Args) > sig.maxArgs) {
		r.errorf(c, diag.ErrTypeMismatch, "function %q takes %s", c.Name, arityDescription(sig))
	}
	argTypes := make([]ast.Type, 0, len(c.Args))
	for _, a := range c.Args {
		r.resolveExpr(q, a, scope, mode, inAggregateContext)
		argTypes = append(argTypes, a.NodeType())
	}
	c.SetType(sig.returnType(argTypes))
}

func arityDescription(sig funcSig) string {
	if sig.maxArgs < 0 {
		return fmt.Sprintf("at least %d argument(s)", sig.minArgs)
	}
	if sig.minArgs == sig.maxArgs {
		return fmt.Sprintf("exactly %d argument(s)", sig.minArgs)
	}
	return fmt.Sprintf("between %d and %d arguments", sig.minArgs, sig.maxArgs)
}

// resolveField resolves a dotted Field chain in resolution-priority order:
// a SELECT-list alias (only when mode allows it), an explicit FROM/JOIN
// alias, then a column/property/relation of the single visible table it
// unambiguously names.
func (r *Resolver) resolveField(q *ast.SelectQuery, f *ast.Field, scope *Scope, mode Visibility) {
	if len(f.Chain) == 0 {
		r.errorf(f, diag.ErrInternal, "field with an empty chain")
		return
	}
	head := f.Chain[0]

	if mode == ModeAliasesVisible {
		if t, ok := scope.lookupSelectAlias(head); ok {
			if len(f.Chain) != 1 {
				r.errorf(f, diag.ErrTypeMismatch, "cannot dot into alias %q", head)
				return
			}
			f.Symbol = ast.Symbol{Path: []ast.Type{t}}
			f.SetType(t)
			return
		}
	}

	if tt, ok := scope.lookupAlias(head); ok {
		if len(f.Chain) == 1 {
			r.errorf(f, diag.ErrTypeMismatch, "%q names a table, not a column", head)
			return
		}
		if tt.Select != nil {
			path, err := r.resolveAgainstSubquery(tt, f.Chain[1:])
			if err != nil {
				r.reportResolveErr(f, err)
				return
			}
			f.Symbol = ast.Symbol{Path: path}
			f.SetType(path[len(path)-1])
			return
		}
		stbl, ok := r.registry.Table(tt.Name)
		if !ok {
			r.errorf(f, diag.ErrConfiguration, "unknown table %q", tt.Name)
			return
		}
		path, err := r.resolveAgainstTable(q, tt, stbl, tt.Alias, nil, map[string]bool{}, f.Chain[1:])
		if err != nil {
			r.reportResolveErr(f, err)
			return
		}
		f.Symbol = ast.Symbol{Path: path}
		f.SetType(path[len(path)-1])
		return
	}

	var matches []tableEntry
	for _, te := range scope.visibleTables() {
		if te.typ.Select != nil {
			if hasSubqueryColumn(te.typ, head) {
				matches = append(matches, te)
			}
			continue
		}
		stbl, ok := r.registry.Table(te.typ.Name)
		if !ok {
			continue
		}
		if _, ok := stbl.ResolveMember(head); ok {
			matches = append(matches, te)
		}
	}
	if len(matches) > 1 {
		r.errorf(f, diag.ErrAmbiguousName, "%q is ambiguous between multiple FROM tables", head)
		return
	}
	if len(matches) == 1 {
		te := matches[0]
		if te.typ.Select != nil {
			path, err := r.resolveAgainstSubquery(te.typ, f.Chain)
			if err != nil {
				r.reportResolveErr(f, err)
				return
			}
			f.Symbol = ast.Symbol{Path: path}
			f.SetType(path[len(path)-1])
			return
		}
		stbl, _ := r.registry.Table(te.typ.Name)
		path, err := r.resolveAgainstTable(q, te.typ, stbl, te.alias, nil, map[string]bool{}, f.Chain)
		if err != nil {
			r.reportResolveErr(f, err)
			return
		}
		f.Symbol = ast.Symbol{Path: path}
		f.SetType(path[len(path)-1])
		return
	}

	r.errorf(f, diag.ErrNotFound, "%q could not be resolved against any visible table", head)
}

// resolveErr is a structured resolution failure carrying its diag code, so
// callers at different nesting levels can report it against the right
// node without losing the code/message.
type resolveErr struct {
	code    string
	message string
}

func (e *resolveErr) Error() string { return e.message }

func (r *Resolver) reportResolveErr(n ast.Node, err error) {
	if re, ok := err.(*resolveErr); ok {
		r.errorf(n, re.code, "%s", re.message)
		return
	}
	r.errorf(n, diag.ErrInternal, "%s", err.Error())
}

// resolveAgainstTable consumes chain against stbl (the schema table backing
// tt), returning one Type per consumed segment after virtual-field and
// lazy-join expansion. anchorAlias is the FROM/JOIN alias the whole chain
// departs from (fixed for the lifetime of one resolveField call);
// chainSoFar accumulates the lazy-join hop names traversed so far, used to
// build each hop's MaterializationPath. visited guards against a
// self-referential schema producing an infinite hop chain.
func (r *Resolver) resolveAgainstTable(
	q *ast.SelectQuery,
	tt *ast.TableType,
	stbl *schema.Table,
	anchorAlias string,
	chainSoFar []string,
	visited map[string]bool,
	chain []string,
) ([]ast.Type, error) {
	if len(chain) == 0 {
		return nil, &resolveErr{diag.ErrNotFound, "expected a field name after the table reference"}
	}
	name := chain[0]
	rest := chain[1:]

	member, ok := stbl.ResolveMember(name)
	if !ok {
		return nil, &resolveErr{diag.ErrNotFound, fmt.Sprintf("%q has no member %q", stbl.Name, name)}
	}

	switch m := member.(type) {
	case schema.Field:
		if len(rest) != 0 {
			return nil, &resolveErr{diag.ErrTypeMismatch, fmt.Sprintf("%q is a scalar column, cannot dot into it", name)}
		}
		ft := &ast.FieldType{Table: tt, Name: m.Name, Column: m.Column, Scalar: m.Kind.Type()}
		return []ast.Type{ft}, nil

	case *schema.PropertyBag:
		if len(rest) == 0 {
			return nil, &resolveErr{diag.ErrTypeMismatch, fmt.Sprintf("%q requires a property key, e.g. %s.key", name, name)}
		}
		pt := &ast.PropertyType{Table: tt, BagColumn: m.Column, Owner: m.Owner, KeyPath: rest}
		return []ast.Type{pt}, nil

	case schema.VirtualField:
		return r.resolveVirtualField(tt, stbl, m, rest)

	case schema.LazyJoin:
		key := stbl.Name + "." + m.Name
		if visited[key] {
			return nil, &resolveErr{diag.ErrCyclicJoin, fmt.Sprintf("cyclic lazy join through %q", m.Name)}
		}
		nextVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			nextVisited[k] = true
		}
		nextVisited[key] = true

		hopChain := append(append([]string{}, chainSoFar...), m.Name)
		path := ast.MaterializationPath{Anchor: anchorAlias, Chain: hopChain}
		recordMaterialization(q, path)

		targetStbl, ok := r.registry.Table(m.Target)
		if !ok {
			return nil, &resolveErr{diag.ErrConfiguration, fmt.Sprintf("lazy join %q targets unknown table %q", m.Name, m.Target)}
		}
		targetTT := &ast.TableType{Name: targetStbl.Name, Physical: targetStbl.Physical, Alias: path.Alias(), Materialized: true}
		ljType := &ast.LazyJoinType{Path: path, Target: targetTT}

		if len(rest) == 0 {
			return []ast.Type{ljType}, nil
		}
		subPath, err := r.resolveAgainstTable(q, targetTT, targetStbl, anchorAlias, hopChain, nextVisited, rest)
		if err != nil {
			return nil, err
		}
		return append([]ast.Type{ljType}, subPath...), nil

	default:
		return nil, &resolveErr{diag.ErrInternal, fmt.Sprintf("unhandled schema member type %T", member)}
	}
}

func hasSubqueryColumn(tt *ast.TableType, name string) bool {
	for _, col := range tt.Select.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// resolveAgainstSubquery resolves a single-segment chain against a
// subquery-backed table's exposed output columns. A subquery's result set
// is always flat, so dotting further into the result (len(chain) != 1) is
// a type error rather than another lazy-join hop.
func (r *Resolver) resolveAgainstSubquery(tt *ast.TableType, chain []string) ([]ast.Type, error) {
	if len(chain) != 1 {
		return nil, &resolveErr{diag.ErrTypeMismatch, fmt.Sprintf("%q is a subquery column, cannot dot into it", strings.Join(chain, "."))}
	}
	name := chain[0]
	if !hasSubqueryColumn(tt, name) {
		return nil, &resolveErr{diag.ErrNotFound, fmt.Sprintf("%q has no column %q", tt.Alias, name)}
	}
	ft := &ast.FieldType{Table: tt, Name: name, Column: name, Scalar: ast.Unknown{}}
	return []ast.Type{ft}, nil
}

func (r *Resolver) resolveVirtualField(tt *ast.TableType, stbl *schema.Table, vf schema.VirtualField, rest []string) ([]ast.Type, error) {
	if len(rest) == 0 {
		return []ast.Type{&ast.VirtualFieldType{Table: tt, Name: vf.Name}}, nil
	}
	sub := rest[0]
	subRest := rest[1:]

	if col, ok := vf.Columns[sub]; ok {
		if len(subRest) != 0 {
			return nil, &resolveErr{diag.ErrTypeMismatch, fmt.Sprintf("%q is a scalar column, cannot dot into it", sub)}
		}
		scalar := ast.Type(ast.Unknown{})
		if backing, ok := stbl.Fields[col]; ok {
			scalar = backing.Kind.Type()
		}
		ft := &ast.FieldType{Table: tt, Name: sub, Column: col, Scalar: scalar}
		vft := &ast.VirtualFieldType{Table: tt, Name: vf.Name, Inner: ft}
		return []ast.Type{vft, ft}, nil
	}

	if vf.Properties != nil && vf.Properties.Name == sub {
		if len(subRest) == 0 {
			return nil, &resolveErr{diag.ErrTypeMismatch, fmt.Sprintf("%q requires a property key, e.g. %s.%s.key", sub, vf.Name, sub)}
		}
		pt := &ast.PropertyType{Table: tt, BagColumn: vf.Properties.Column, Owner: vf.Properties.Owner, KeyPath: subRest}
		vft := &ast.VirtualFieldType{Table: tt, Name: vf.Name}
		return []ast.Type{vft, pt}, nil
	}

	return nil, &resolveErr{diag.ErrNotFound, fmt.Sprintf("%q has no member %q", vf.Name, sub)}
}

func recordMaterialization(q *ast.SelectQuery, path ast.MaterializationPath) {
	for _, existing := range q.MaterializationRequests {
		if existing.Anchor == path.Anchor && equalChains(existing.Chain, path.Chain) {
			return
		}
	}
	q.MaterializationRequests = append(q.MaterializationRequests, path)
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
