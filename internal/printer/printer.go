// Package printer performs the depth-first emission of a resolved,
// planned SelectQuery into backend SQL (and a normalized AQL form for
// display), injecting mandatory tenant predicates and collapsing bound
// values into a placeholder map along the way.
package printer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/token"
)

// Config carries the per-compile values the printer needs but which are
// not part of the AST itself.
type Config struct {
	// TenantID is injected into every physical table's mandatory
	// tenant predicate.
	TenantID int64
	// DefaultLimit is appended to the outermost query when it has no
	// explicit LIMIT. Zero means "use 100", the value resolved in
	// SPEC_FULL.md's open-question notes.
	DefaultLimit int64
}

func (c Config) defaultLimit() int64 {
	if c.DefaultLimit == 0 {
		return 100
	}
	return c.DefaultLimit
}

// Output is the printer's result: the backend SQL, the normalized AQL
// display form, and the bound-value map the backend SQL's placeholders
// reference.
type Output struct {
	BackendSQL  string
	AQLSQL      string
	BoundValues map[string]any
}

type printMode int

const (
	modeBackend printMode = iota
	modeAQL
)

// Print runs the depth-first visitor twice over q — once per mode — and
// returns both outputs together, per spec.md §4.5's "printer runs
// twice" requirement.
func Print(q *ast.SelectQuery, cfg Config) (*Output, *diag.Diagnostics) {
	diags := diag.New()

	backend := newState(modeBackend, cfg, diags)
	backend.printSelectQuery(q, true)

	aql := newState(modeAQL, cfg, diags)
	aql.printSelectQuery(q, true)

	return &Output{
		BackendSQL:  backend.buf.String(),
		AQLSQL:      aql.buf.String(),
		BoundValues: backend.bound,
	}, diags
}

// state is the per-mode visitor state threaded through one printing pass.
// Two states exist per Print call (one per mode); only the backend
// state's bound map is meaningful, since AQL mode never binds values.
type state struct {
	mode  printMode
	cfg   Config
	buf   strings.Builder
	bound map[string]any
	n     int
	diags *diag.Diagnostics
}

func newState(mode printMode, cfg Config, diags *diag.Diagnostics) *state {
	return &state{mode: mode, cfg: cfg, bound: map[string]any{}, diags: diags}
}

// bindValue allocates the next hogql_val_<i> placeholder for v and
// records it in the bound-value map, returning the placeholder token to
// splice into the SQL text. Only ever called in backend mode.
func (s *state) bindValue(v any) string {
	name := fmt.Sprintf("hogql_val_%d", s.n)
	s.n++
	s.bound[name] = v
	return "%(" + name + ")s"
}

func (s *state) writeLiteral(v any) {
	switch x := v.(type) {
	case nil:
		s.buf.WriteString("NULL")
	case string:
		s.buf.WriteString("'")
		s.buf.WriteString(strings.ReplaceAll(x, "'", "\\'"))
		s.buf.WriteString("'")
	case bool:
		if x {
			s.buf.WriteString("true")
		} else {
			s.buf.WriteString("false")
		}
	case int64:
		s.buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		s.buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case uuid.UUID:
		s.buf.WriteString("'")
		s.buf.WriteString(x.String())
		s.buf.WriteString("'")
	default:
		fmt.Fprintf(&s.buf, "%v", x)
	}
}

// printSelectQuery is the entry point for one SELECT statement, outermost
// or nested. outermost controls default-LIMIT injection, which never
// applies to a nested query.
func (s *state) printSelectQuery(q *ast.SelectQuery, outermost bool) {
	s.buf.WriteString("SELECT ")
	if q.Distinct {
		s.buf.WriteString("DISTINCT ")
	}
	for i, item := range q.Select {
		if i > 0 {
			s.buf.WriteString(", ")
		}
		s.printExpr(item)
	}

	if q.From != nil {
		s.buf.WriteString(" FROM ")
		s.printFromChain(q.From)
	}

	where := s.buildWhere(q)
	if where != "" {
		s.buf.WriteString(" WHERE ")
		s.buf.WriteString(where)
	}

	if q.Prewhere != nil {
		s.buf.WriteString(" PREWHERE ")
		s.printExpr(q.Prewhere)
	}

	if len(q.GroupBy) > 0 {
		s.buf.WriteString(" GROUP BY ")
		for i, g := range q.GroupBy {
			if i > 0 {
				s.buf.WriteString(", ")
			}
			s.printExpr(g)
		}
	}

	if q.Having != nil {
		s.buf.WriteString(" HAVING ")
		s.printExpr(q.Having)
	}

	if len(q.OrderBy) > 0 {
		s.buf.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				s.buf.WriteString(", ")
			}
			s.printExpr(o.Expr)
			if o.Direction == ast.Descending {
				s.buf.WriteString(" DESC")
			} else {
				s.buf.WriteString(" ASC")
			}
		}
	}

	switch {
	case q.Limit != nil:
		s.buf.WriteString(" LIMIT ")
		s.printLimitValue(q.Limit)
	case outermost:
		s.buf.WriteString(" LIMIT ")
		s.buf.WriteString(strconv.FormatInt(s.cfg.defaultLimit(), 10))
	}

	if q.Offset != nil {
		s.buf.WriteString(" OFFSET ")
		s.printLimitValue(q.Offset)
	}
}

// printLimitValue renders a LIMIT/OFFSET bound. ClickHouse LIMIT/OFFSET
// clauses take a literal count, never a bound parameter, so a written
// Constant prints as bare literal text regardless of its Literal flag;
// anything else (an expression) prints through the normal path.
func (s *state) printLimitValue(e ast.Expr) {
	if c, ok := e.(*ast.Constant); ok {
		s.writeLiteral(c.Value)
		return
	}
	s.printExpr(e)
}

// buildWhere combines the mandatory tenant predicates for every physical
// table directly referenced in q's own FROM chain (backend mode only)
// with the user-written WHERE clause, conjoined in FROM-visitation
// order. AQL mode never injects tenant predicates.
func (s *state) buildWhere(q *ast.SelectQuery) string {
	var parts []string
	if s.mode == modeBackend {
		for link := q.From; link != nil; link = link.Next {
			if pred, ok := tenantPredicate(link, s.cfg.TenantID); ok {
				parts = append(parts, pred)
			}
		}
	}
	if q.Where != nil {
		saved := s.buf
		s.buf = strings.Builder{}
		s.printExpr(q.Where)
		parts = append(parts, s.buf.String())
		s.buf = saved
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "and(" + strings.Join(parts, ", ") + ")"
	}
}

// tenantPredicate returns the `equals(<alias>.team_id, <tenant>)` text
// for link's target when it is a bare physical table reference, using
// whatever identifier the backend FROM clause actually printed for it so
// the WHERE clause's alias always matches.
func tenantPredicate(link *ast.JoinExpr, tenantID int64) (string, bool) {
	ref, ok := link.Target.(*ast.TableRef)
	if !ok || ref.Select != nil || ref.Name == "" {
		return "", false
	}
	return fmt.Sprintf("equals(%s.team_id, %d)", boundAlias(link), tenantID), true
}

// boundAlias is the identifier the resolver bound to link's target: the
// written alias, or the table's own name (or "subquery") when none was
// written. Planner-synthesized links carry no type and use link.Alias.
func boundAlias(link *ast.JoinExpr) string {
	if tt, ok := link.NodeType().(*ast.TableType); ok && tt.Alias != "" {
		return tt.Alias
	}
	return link.Alias
}

func (s *state) printFromChain(link *ast.JoinExpr) {
	first := true
	for ; link != nil; link = link.Next {
		if s.mode == modeAQL && link.Synthetic {
			continue
		}
		if first {
			first = false
		} else {
			s.printJoinKeyword(link.Kind)
		}
		s.printJoinTarget(link)
	}
}

func (s *state) printJoinKeyword(kind ast.JoinKind) {
	switch kind {
	case ast.LeftOuterJoin:
		s.buf.WriteString(" LEFT JOIN ")
	default:
		s.buf.WriteString(" INNER JOIN ")
	}
}

func (s *state) printJoinTarget(link *ast.JoinExpr) {
	ref, ok := link.Target.(*ast.TableRef)
	if !ok {
		s.diags.AddErrorAt(link.Pos(), diag.ErrInternal, "join target is not a table reference")
		return
	}

	if ref.Select != nil {
		s.buf.WriteString("(")
		s.printSelectQuery(ref.Select, false)
		s.buf.WriteString(")")
		s.buf.WriteString(" AS ")
		s.buf.WriteString(boundAlias(link))
	} else {
		name := ref.Name
		tt, hasType := ref.NodeType().(*ast.TableType)
		if s.mode == modeBackend && hasType {
			name = tt.Physical
		}
		s.buf.WriteString(name)
		if alias := boundAlias(link); !hasType || alias != name {
			if alias != "" {
				s.buf.WriteString(" AS ")
				s.buf.WriteString(alias)
			}
		}
	}

	if link.On != nil {
		s.buf.WriteString(" ON ")
		s.printExpr(link.On)
	}
}

// printExpr dispatches on e's concrete type. It is the single entry
// point recursing through every expression shape the resolved tree can
// hold.
func (s *state) printExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.Constant:
		s.printConstant(n)
	case *ast.Field:
		s.printField(n)
	case *ast.Alias:
		s.printExpr(n.Inner)
		s.buf.WriteString(" AS ")
		s.buf.WriteString(n.Name)
	case *ast.Call:
		s.printCall(n)
	case *ast.BinaryOp:
		s.printBinaryOp(n)
	case *ast.CompareOp:
		s.printCompareOp(n)
	case *ast.And:
		s.printVariadic("and", n.Operands)
	case *ast.Or:
		s.printVariadic("or", n.Operands)
	case *ast.Not:
		s.printNot(n)
	case *ast.Placeholder:
		s.diags.AddErrorAt(n.Pos(), diag.ErrInternal, "unsubstituted placeholder reached the printer")
	case *ast.Asterisk:
		s.diags.AddErrorAt(n.Pos(), diag.ErrIllegalWildcard, "`*` survived to the printer")
	default:
		s.diags.AddErrorAt(e.Pos(), diag.ErrInternal, fmt.Sprintf("printer: unhandled expression node %T", e))
	}
}

func (s *state) printConstant(c *ast.Constant) {
	if c.Literal || s.mode == modeAQL {
		s.writeLiteral(c.Value)
		return
	}
	s.buf.WriteString(s.bindValue(c.Value))
}

func (s *state) printVariadic(name string, operands []ast.Expr) {
	s.buf.WriteString(name)
	s.buf.WriteString("(")
	for i, o := range operands {
		if i > 0 {
			s.buf.WriteString(", ")
		}
		s.printExpr(o)
	}
	s.buf.WriteString(")")
}

func (s *state) printNot(n *ast.Not) {
	if cmp, ok := n.Operand.(*ast.CompareOp); ok {
		switch cmp.Op {
		case token.IS:
			s.buf.WriteString("isNotNull(")
			s.printExpr(cmp.Left)
			s.buf.WriteString(")")
			return
		case token.IN:
			s.buf.WriteString("notIn(")
			s.printExpr(cmp.Left)
			s.buf.WriteString(", ")
			s.printExpr(cmp.Right)
			s.buf.WriteString(")")
			return
		}
	}
	s.buf.WriteString("not(")
	s.printExpr(n.Operand)
	s.buf.WriteString(")")
}

var binaryFuncs = map[token.Type]string{
	token.PLUS:    "plus",
	token.MINUS:   "minus",
	token.STAR:    "multiply",
	token.SLASH:   "divide",
	token.PERCENT: "modulo",
}

func (s *state) printBinaryOp(n *ast.BinaryOp) {
	fn, ok := binaryFuncs[n.Op]
	if !ok {
		s.diags.AddErrorAt(n.Pos(), diag.ErrInternal, fmt.Sprintf("printer: unknown binary operator %s", n.Op))
		fn = "plus"
	}
	s.buf.WriteString(fn)
	s.buf.WriteString("(")
	s.printExpr(n.Left)
	s.buf.WriteString(", ")
	s.printExpr(n.Right)
	s.buf.WriteString(")")
}

var compareFuncs = map[token.Type]string{
	token.ASSIGN: "equals",
	token.EQ:     "equals",
	token.NEQ:    "notEquals",
	token.LT:     "less",
	token.GT:     "greater",
	token.LTE:    "lessOrEquals",
	token.GTE:    "greaterOrEquals",
	token.IN:     "in",
}

func (s *state) printCompareOp(n *ast.CompareOp) {
	if n.Op == token.IS {
		s.buf.WriteString("isNull(")
		s.printExpr(n.Left)
		s.buf.WriteString(")")
		return
	}
	fn, ok := compareFuncs[n.Op]
	if !ok {
		s.diags.AddErrorAt(n.Pos(), diag.ErrInternal, fmt.Sprintf("printer: unknown comparison operator %s", n.Op))
		fn = "equals"
	}
	s.buf.WriteString(fn)
	s.buf.WriteString("(")
	s.printExpr(n.Left)
	s.buf.WriteString(", ")
	s.printExpr(n.Right)
	s.buf.WriteString(")")
}

func (s *state) printCall(c *ast.Call) {
	s.buf.WriteString(c.Name)
	s.buf.WriteString("(")
	if c.Distinct {
		s.buf.WriteString("DISTINCT ")
	}
	for i, a := range c.Args {
		if i > 0 {
			s.buf.WriteString(", ")
		}
		s.printExpr(a)
	}
	s.buf.WriteString(")")
}

// printField renders a resolved Field leaf. AQL mode always prints the
// original dotted chain the user wrote (Field.Chain is untouched by
// resolution), giving the "without JSON expansion" normalized form for
// free; backend mode renders the resolved Symbol's terminal type.
func (s *state) printField(f *ast.Field) {
	if s.mode == modeAQL {
		s.buf.WriteString(strings.Join(f.Chain, "."))
		return
	}
	switch t := f.Symbol.Terminal().(type) {
	case *ast.FieldType:
		fmt.Fprintf(&s.buf, "%s.%s", t.Table.Alias, t.Column)
	case *ast.PropertyType:
		s.printPropertyAccess(t)
	case *ast.FieldAliasType:
		s.buf.WriteString(t.Name)
	case *ast.VirtualFieldType:
		if ft, ok := t.Inner.(*ast.FieldType); ok {
			fmt.Fprintf(&s.buf, "%s.%s", ft.Table.Alias, ft.Column)
			return
		}
		s.buf.WriteString(t.Name)
	default:
		s.diags.AddErrorAt(f.Pos(), diag.ErrInternal, fmt.Sprintf("printer: field resolved to unprintable type %T", t))
	}
}

// printPropertyAccess renders a coerced JSON property-bag leaf access,
// chaining one JSONExtractRaw per dotted key segment and wrapping the
// result in the coercion the property-type transform assigned.
func (s *state) printPropertyAccess(pt *ast.PropertyType) {
	raw := fmt.Sprintf("%s.%s", pt.Table.Alias, pt.BagColumn)
	for _, key := range pt.KeyPath {
		raw = fmt.Sprintf("JSONExtractRaw(%s, %s)", raw, s.bindValue(key))
	}
	raw = fmt.Sprintf("replaceRegexpAll(%s, '^\"|\"$', '')", raw)

	switch pt.Coercion {
	case ast.CoerceNumeric:
		s.buf.WriteString(fmt.Sprintf("toFloat64OrNull(%s)", raw))
	case ast.CoerceDateTime:
		s.buf.WriteString(fmt.Sprintf("parseDateTime64BestEffortOrNull(%s)", raw))
	case ast.CoerceBoolean:
		s.buf.WriteString(fmt.Sprintf("equals(%s, %s)", raw, s.bindValue("true")))
	default:
		s.buf.WriteString(raw)
	}
}

