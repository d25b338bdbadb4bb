// Package ast defines the Abstract Syntax Tree for AQL queries.
package ast

import "github.com/aql-lang/aql/internal/token"

// Node is the base interface implemented by every AST node.
type Node interface {
	node()
	Pos() token.Position
	End() token.Position
}

// Expr is any expression node: something that resolves to a value and
// carries a Type once resolution completes.
type Expr interface {
	Node
	exprNode()
	NodeType() Type
	SetType(Type)
}

// base embeds common position bookkeeping and a resolved type slot
// shared by every expression node.
type base struct {
	StartPos token.Position
	EndPos   token.Position
	Type_    Type
}

func (b *base) Pos() token.Position { return b.StartPos }
func (b *base) End() token.Position { return b.EndPos }
func (b *base) NodeType() Type      { return b.Type_ }
func (b *base) SetType(t Type)      { b.Type_ = t }
func (b *base) node()               {}
func (b *base) exprNode()           {}

// Constant is a literal value: string, number, boolean, or null.
type Constant struct {
	base
	Value interface{} // string, int64, float64, bool, uuid.UUID, or nil
	// Literal marks a constant synthesized by schema/planner machinery
	// (e.g. the argMax rollup's `HAVING ... = 0`) that must always print as
	// a bare literal, never a bound backend placeholder.
	Literal bool
}

// Field is a dotted name chain, e.g. events.pdi.person.properties.$email.
// Chain has at least one segment; resolution may expand it (virtual field
// expansion) without changing the segment count invariant described by
// the resolved Symbol.
type Field struct {
	base
	Chain  []string
	Symbol Symbol // filled by the resolver
}

// Alias names an inner expression, e.g. `count() as total`.
type Alias struct {
	base
	Inner Expr
	Name  string
}

// Call is a function invocation, e.g. count(), sum(properties.amount).
type Call struct {
	base
	Name      string
	Args      []Expr
	Distinct  bool
}

// BinaryOp is an arithmetic binary operator (+ - * / %).
type BinaryOp struct {
	base
	Op          token.Type
	Left, Right Expr
}

// CompareOp is a comparison operator (= != < > <= >= in is).
type CompareOp struct {
	base
	Op          token.Type
	Left, Right Expr
}

// And is a boolean conjunction of two or more operands.
type And struct {
	base
	Operands []Expr
}

// Or is a boolean disjunction of two or more operands.
type Or struct {
	base
	Operands []Expr
}

// Not negates a single operand.
type Not struct {
	base
	Operand Expr
}

// Placeholder is a named hole substituted with a caller-supplied AST
// fragment before resolution begins (`where x = {value}`).
type Placeholder struct {
	base
	Name string
}

// Asterisk is a bare `*` in a SELECT list, optionally qualified by a
// table/alias prefix (`t.*`).
type Asterisk struct {
	base
	Qualifier string // empty for an unqualified `*`
}

// Direction is the sort order of an OrderExpr.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// OrderExpr pairs an expression with a sort direction in ORDER BY.
type OrderExpr struct {
	base
	Expr      Expr
	Direction Direction
}

// JoinKind identifies the kind of SQL join a JoinExpr represents.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftOuterJoin
)

// TableRef is either a bare table name or a nested SelectQuery, used as
// the target of a FROM clause or JoinExpr.
type TableRef struct {
	base
	Name   string       // set when the target is a physical/logical table name
	Select *SelectQuery // set when the target is a nested subquery
}

// JoinExpr is one link in a FROM/JOIN chain: a target table or subquery,
// its alias, the join kind, an ON-constraint, and the next join in the
// chain (nil when this is the last).
type JoinExpr struct {
	base
	Target Expr // *TableRef
	Alias  string
	Kind   JoinKind
	On     Expr // nil for the first (bare FROM) link
	Next   *JoinExpr
	// Synthetic marks a join the planner materialized from a lazy-join
	// hop rather than one the query text itself wrote. The AQL-mode
	// printer omits synthetic links, reconstructing the original dotted
	// field chain instead, so re-parsing its output compiles back to the
	// same materialized joins rather than duplicating them.
	Synthetic bool
}

// SelectQuery is a single SELECT statement. Nested queries appear as the
// Select field of a TableRef inside a JoinExpr.
type SelectQuery struct {
	base
	Select   []Expr
	From     *JoinExpr
	Where    Expr
	Prewhere Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []*OrderExpr
	Limit    Expr
	Offset   Expr
	Distinct bool

	// MaterializationRequests accumulates the distinct (anchor, chain)
	// lazy-join paths recorded while resolving this query's subtree; the
	// join planner consumes it to synthesize INNER JOIN subqueries.
	MaterializationRequests []MaterializationPath
}

// MaterializationPath names a single lazy-join chain reachable from an
// anchor alias in a SelectQuery's FROM tree, e.g. anchor "events" with
// chain ["pdi", "person"].
type MaterializationPath struct {
	Anchor string
	Chain  []string
}

// Alias returns the "__"-joined materialized alias for this path, e.g.
// "events__pdi__person".
func (p MaterializationPath) Alias() string {
	out := p.Anchor
	for _, hop := range p.Chain {
		out += "__" + hop
	}
	return out
}

var (
	_ Expr = (*Constant)(nil)
	_ Expr = (*Field)(nil)
	_ Expr = (*Alias)(nil)
	_ Expr = (*Call)(nil)
	_ Expr = (*BinaryOp)(nil)
	_ Expr = (*CompareOp)(nil)
	_ Expr = (*And)(nil)
	_ Expr = (*Or)(nil)
	_ Expr = (*Not)(nil)
	_ Expr = (*Placeholder)(nil)
	_ Expr = (*Asterisk)(nil)
	_ Expr = (*TableRef)(nil)
	_ Expr = (*JoinExpr)(nil)
	_ Expr = (*SelectQuery)(nil)
)
