// Package parser provides a handwritten Pratt/recursive-descent parser
// for AQL query text, producing the closed AST defined in internal/ast.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/diag"
	"github.com/aql-lang/aql/internal/lexer"
	"github.com/aql-lang/aql/internal/token"
)

// Precedence levels for Pratt parsing.
const (
	_ int = iota
	LOWEST
	OR      // or
	AND     // and
	EQUALS  // = == != is in (not in)
	COMPARE // < > <= >=
	SUM     // + -
	PRODUCT // * / %
	PREFIX  // not x
	CALL    // func(...)
)

var precedences = map[token.Type]int{
	token.OR:      OR,
	token.AND:     AND,
	token.ASSIGN:  EQUALS,
	token.EQ:      EQUALS,
	token.NEQ:     EQUALS,
	token.IS:      EQUALS,
	token.IN:      EQUALS,
	token.NOT:     EQUALS,
	token.LT:      COMPARE,
	token.GT:      COMPARE,
	token.LTE:     COMPARE,
	token.GTE:     COMPARE,
	token.PLUS:    SUM,
	token.MINUS:   SUM,
	token.STAR:    PRODUCT,
	token.SLASH:   PRODUCT,
	token.PERCENT: PRODUCT,
	token.LPAREN:  CALL,
}

// Parser parses AQL source text into a *ast.SelectQuery.
type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
	diag      *diag.Diagnostics

	prefixParseFns map[token.Type]func() ast.Expr
	infixParseFns  map[token.Type]func(ast.Expr) ast.Expr
}

// New creates a Parser over input.
func New(input string) *Parser {
	p := &Parser{
		l:    lexer.New(input),
		diag: diag.New(),
	}

	p.prefixParseFns = make(map[token.Type]func() ast.Expr)
	p.registerPrefix(token.IDENT, p.parseFieldExpr)
	p.registerPrefix(token.INT, p.parseIntegerLiteral)
	p.registerPrefix(token.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBooleanLiteral)
	p.registerPrefix(token.FALSE, p.parseBooleanLiteral)
	p.registerPrefix(token.NULL, p.parseNullLiteral)
	p.registerPrefix(token.NOT, p.parseNotExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.LBRACE, p.parsePlaceholder)

	p.infixParseFns = make(map[token.Type]func(ast.Expr) ast.Expr)
	p.registerInfix(token.PLUS, p.parseBinaryOp)
	p.registerInfix(token.MINUS, p.parseBinaryOp)
	p.registerInfix(token.STAR, p.parseBinaryOp)
	p.registerInfix(token.SLASH, p.parseBinaryOp)
	p.registerInfix(token.PERCENT, p.parseBinaryOp)
	p.registerInfix(token.ASSIGN, p.parseCompareOp)
	p.registerInfix(token.EQ, p.parseCompareOp)
	p.registerInfix(token.NEQ, p.parseCompareOp)
	p.registerInfix(token.LT, p.parseCompareOp)
	p.registerInfix(token.GT, p.parseCompareOp)
	p.registerInfix(token.LTE, p.parseCompareOp)
	p.registerInfix(token.GTE, p.parseCompareOp)
	p.registerInfix(token.AND, p.parseAndOp)
	p.registerInfix(token.OR, p.parseOrOp)
	p.registerInfix(token.IN, p.parseInExpression)
	p.registerInfix(token.IS, p.parseIsExpression)
	p.registerInfix(token.NOT, p.parseNotInExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)

	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(t token.Type, fn func() ast.Expr) {
	p.prefixParseFns[t] = fn
}

func (p *Parser) registerInfix(t token.Type, fn func(ast.Expr) ast.Expr) {
	p.infixParseFns[t] = fn
}

// Diagnostics returns every diagnostic raised during lexing and parsing.
func (p *Parser) Diagnostics() *diag.Diagnostics {
	result := diag.New()
	result.Merge(p.l.Diagnostics())
	result.Merge(p.diag)
	return result
}

// nextToken advances curToken/peekToken, skipping any comment token. The
// lexer's NextToken already consumes `--` line comments itself, so this
// loop only guards against a COMMENT token reaching the parser.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
	for p.peekToken.Type == token.COMMENT {
		p.peekToken = p.l.NextToken()
	}
}

func (p *Parser) curTokenIs(t token.Type) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.Type) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t token.Type) {
	p.diag.AddErrorAt(p.peekToken.Pos, diag.ErrExpectedToken,
		fmt.Sprintf("expected %s, got %s", t, p.peekToken.Type))
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

// Parse parses a single AQL SELECT query from input.
func Parse(input string) (*ast.SelectQuery, *diag.Diagnostics) {
	p := New(input)
	q := p.parseTopLevel()
	return q, p.Diagnostics()
}

func (p *Parser) parseTopLevel() *ast.SelectQuery {
	if !p.curTokenIs(token.SELECT) {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidSelect,
			fmt.Sprintf("expected SELECT, got %s", p.curToken.Type))
		return nil
	}
	q := p.parseSelectQuery()
	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	if !p.peekTokenIs(token.EOF) {
		p.diag.AddErrorAt(p.peekToken.Pos, diag.ErrUnexpectedToken,
			fmt.Sprintf("unexpected token %s after query", p.peekToken.Type))
	}
	return q
}

// parseSelectQuery parses one SELECT statement, with curToken on SELECT
// at entry. It is re-entrant: a parenthesized FROM-clause subquery calls
// back into this method.
func (p *Parser) parseSelectQuery() *ast.SelectQuery {
	q := &ast.SelectQuery{}
	q.StartPos = p.curToken.Pos

	p.nextToken() // consume SELECT
	if p.curTokenIs(token.DISTINCT) {
		q.Distinct = true
		p.nextToken()
	}

	q.Select = p.parseSelectList()

	if p.peekTokenIs(token.FROM) {
		p.nextToken()
		p.nextToken()
		q.From = p.parseFromChain()
	}
	if p.peekTokenIs(token.PREWHERE) {
		p.nextToken()
		p.nextToken()
		q.Prewhere = p.parseExpression(LOWEST)
	}
	if p.peekTokenIs(token.WHERE) {
		p.nextToken()
		p.nextToken()
		q.Where = p.parseExpression(LOWEST)
	}
	if p.peekTokenIs(token.GROUP) {
		p.nextToken()
		if !p.expectPeek(token.BY) {
			return q
		}
		p.nextToken()
		q.GroupBy = p.parseExprList()
	}
	if p.peekTokenIs(token.HAVING) {
		p.nextToken()
		p.nextToken()
		q.Having = p.parseExpression(LOWEST)
	}
	if p.peekTokenIs(token.ORDER) {
		p.nextToken()
		if !p.expectPeek(token.BY) {
			return q
		}
		p.nextToken()
		q.OrderBy = p.parseOrderList()
	}
	if p.peekTokenIs(token.LIMIT) {
		p.nextToken()
		p.nextToken()
		q.Limit = p.parseExpression(LOWEST)
	}
	if p.peekTokenIs(token.OFFSET) {
		p.nextToken()
		p.nextToken()
		q.Offset = p.parseExpression(LOWEST)
	}

	q.EndPos = p.curToken.End
	return q
}

// parseExprList parses a comma-separated expression list, with curToken
// already positioned on the first expression's first token.
func (p *Parser) parseExprList() []ast.Expr {
	list := []ast.Expr{p.parseExpression(LOWEST)}
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseExpression(LOWEST))
	}
	return list
}

func (p *Parser) parseSelectList() []ast.Expr {
	items := []ast.Expr{p.parseSelectItem()}
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		items = append(items, p.parseSelectItem())
	}
	return items
}

func (p *Parser) parseSelectItem() ast.Expr {
	if p.curTokenIs(token.STAR) {
		a := &ast.Asterisk{}
		a.StartPos = p.curToken.Pos
		a.EndPos = p.curToken.End
		return a
	}

	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return expr
	}
	if p.peekTokenIs(token.AS) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return expr
		}
		alias := &ast.Alias{Inner: expr, Name: p.curToken.Literal}
		alias.StartPos = expr.Pos()
		alias.EndPos = p.curToken.End
		return alias
	}
	return expr
}

// parseFromChain parses the FROM table plus every JOIN link that
// follows, with curToken positioned on the FROM table's first token.
func (p *Parser) parseFromChain() *ast.JoinExpr {
	head := p.parseTableRefLink()
	tail := head

	for {
		kind, ok := p.peekJoinKind()
		if !ok {
			break
		}
		p.consumeJoinKeyword()
		link := p.parseTableRefLink()
		link.Kind = kind
		if !p.expectPeek(token.ON) {
			tail.Next = link
			return head
		}
		p.nextToken()
		link.On = p.parseExpression(LOWEST)
		tail.Next = link
		tail = link
	}
	return head
}

func (p *Parser) peekJoinKind() (ast.JoinKind, bool) {
	switch p.peekToken.Type {
	case token.JOIN, token.INNER:
		return ast.InnerJoin, true
	case token.LEFT:
		return ast.LeftOuterJoin, true
	default:
		return ast.InnerJoin, false
	}
}

// consumeJoinKeyword advances past one of JOIN / INNER JOIN / LEFT JOIN /
// LEFT OUTER JOIN, leaving curToken on the joined table's first token.
func (p *Parser) consumeJoinKeyword() {
	switch p.peekToken.Type {
	case token.JOIN:
		p.nextToken()
	case token.INNER:
		p.nextToken()
		p.expectPeek(token.JOIN)
	case token.LEFT:
		p.nextToken()
		if p.peekTokenIs(token.OUTER) {
			p.nextToken()
		}
		p.expectPeek(token.JOIN)
	}
	p.nextToken()
}

// parseTableRefLink parses one FROM/JOIN source (a bare table name or a
// parenthesized subquery) plus its optional alias, with curToken on the
// source's first token at entry.
func (p *Parser) parseTableRefLink() *ast.JoinExpr {
	start := p.curToken.Pos
	ref := &ast.TableRef{}
	ref.StartPos = start

	switch {
	case p.curTokenIs(token.LPAREN):
		p.nextToken()
		ref.Select = p.parseSelectQuery()
		if !p.expectPeek(token.RPAREN) {
			break
		}
	case p.curTokenIs(token.IDENT):
		ref.Name = p.curToken.Literal
	default:
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrExpectedIdent,
			fmt.Sprintf("expected a table name or subquery, got %s", p.curToken.Type))
	}
	ref.EndPos = p.curToken.End

	alias := ""
	if p.peekTokenIs(token.AS) {
		p.nextToken()
		if p.expectPeek(token.IDENT) {
			alias = p.curToken.Literal
		}
	} else if p.peekTokenIs(token.IDENT) {
		p.nextToken()
		alias = p.curToken.Literal
	}

	link := &ast.JoinExpr{Target: ref, Alias: alias}
	link.StartPos = start
	link.EndPos = p.curToken.End
	return link
}

func (p *Parser) parseOrderList() []*ast.OrderExpr {
	list := []*ast.OrderExpr{p.parseOrderItem()}
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseOrderItem())
	}
	return list
}

func (p *Parser) parseOrderItem() *ast.OrderExpr {
	start := p.curToken.Pos
	e := p.parseExpression(LOWEST)
	dir := ast.Ascending
	if p.peekTokenIs(token.ASC) {
		p.nextToken()
	} else if p.peekTokenIs(token.DESC) {
		p.nextToken()
		dir = ast.Descending
	}
	oe := &ast.OrderExpr{Expr: e, Direction: dir}
	oe.StartPos = start
	oe.EndPos = p.curToken.End
	return oe
}

// parseExpression is the Pratt loop: a prefix parser produces the left
// operand, then infix parsers consume operators whose precedence exceeds
// the caller's floor.
func (p *Parser) parseExpression(precedence int) ast.Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrExpectedExpr,
			fmt.Sprintf("unexpected token %s in expression", p.curToken.Type))
		return nil
	}
	left := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

// parseFieldExpr parses a dotted field chain (events.properties.$email)
// or, if a dot is immediately followed by `*`, a qualified asterisk
// (events.*). Bare `*` is handled separately by parseSelectItem.
func (p *Parser) parseFieldExpr() ast.Expr {
	start := p.curToken.Pos
	chain := []string{p.curToken.Literal}
	end := p.curToken.End

	for p.peekTokenIs(token.DOT) {
		p.nextToken() // curToken = DOT
		if p.peekTokenIs(token.STAR) {
			p.nextToken() // curToken = STAR
			a := &ast.Asterisk{Qualifier: strings.Join(chain, ".")}
			a.StartPos = start
			a.EndPos = p.curToken.End
			return a
		}
		if !p.expectPeek(token.IDENT) {
			break
		}
		chain = append(chain, p.curToken.Literal)
		end = p.curToken.End
	}

	f := &ast.Field{Chain: chain}
	f.StartPos = start
	f.EndPos = end
	return f
}

func (p *Parser) parseIntegerLiteral() ast.Expr {
	v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidNumber,
			fmt.Sprintf("invalid integer literal %q", p.curToken.Literal))
	}
	c := &ast.Constant{Value: v}
	c.StartPos = p.curToken.Pos
	c.EndPos = p.curToken.End
	return c
}

func (p *Parser) parseFloatLiteral() ast.Expr {
	v, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidNumber,
			fmt.Sprintf("invalid float literal %q", p.curToken.Literal))
	}
	c := &ast.Constant{Value: v}
	c.StartPos = p.curToken.Pos
	c.EndPos = p.curToken.End
	return c
}

// looksLikeUUID reports whether s has the canonical 8-4-4-4-12 hyphen
// layout of a UUID, the trigger for attempting uuid.Parse at parse time.
func looksLikeUUID(s string) bool {
	return len(s) == 36 && s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func (p *Parser) parseStringLiteral() ast.Expr {
	c := &ast.Constant{}
	c.StartPos = p.curToken.Pos
	c.EndPos = p.curToken.End

	lit := p.curToken.Literal
	if looksLikeUUID(lit) {
		u, err := uuid.Parse(lit)
		if err != nil {
			p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidUUID,
				fmt.Sprintf("invalid UUID literal %q: %v", lit, err))
			c.Value = lit
			return c
		}
		c.Value = u
		return c
	}
	c.Value = lit
	return c
}

func (p *Parser) parseBooleanLiteral() ast.Expr {
	c := &ast.Constant{Value: p.curTokenIs(token.TRUE)}
	c.StartPos = p.curToken.Pos
	c.EndPos = p.curToken.End
	return c
}

func (p *Parser) parseNullLiteral() ast.Expr {
	c := &ast.Constant{Value: nil}
	c.StartPos = p.curToken.Pos
	c.EndPos = p.curToken.End
	return c
}

func (p *Parser) parseNotExpression() ast.Expr {
	start := p.curToken.Pos
	p.nextToken()
	operand := p.parseExpression(PREFIX)
	n := &ast.Not{Operand: operand}
	n.StartPos = start
	if operand != nil {
		n.EndPos = operand.End()
	}
	return n
}

func (p *Parser) parseGroupedExpression() ast.Expr {
	p.nextToken() // consume '('
	inner := p.parseExpression(LOWEST)
	p.expectPeek(token.RPAREN)
	return inner
}

func (p *Parser) parsePlaceholder() ast.Expr {
	start := p.curToken.Pos
	ph := &ast.Placeholder{}
	ph.StartPos = start

	if !p.expectPeek(token.IDENT) {
		ph.EndPos = p.curToken.End
		return ph
	}
	ph.Name = p.curToken.Literal
	p.expectPeek(token.RBRACE)
	ph.EndPos = p.curToken.End
	return ph
}

func (p *Parser) parseBinaryOp(left ast.Expr) ast.Expr {
	op := p.curToken.Type
	prec := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(prec)
	b := &ast.BinaryOp{Op: op, Left: left, Right: right}
	b.StartPos = left.Pos()
	if right != nil {
		b.EndPos = right.End()
	}
	return b
}

func (p *Parser) parseCompareOp(left ast.Expr) ast.Expr {
	op := p.curToken.Type
	prec := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(prec)
	c := &ast.CompareOp{Op: op, Left: left, Right: right}
	c.StartPos = left.Pos()
	if right != nil {
		c.EndPos = right.End()
	}
	return c
}

func (p *Parser) parseAndOp(left ast.Expr) ast.Expr {
	prec := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(prec)

	and := &ast.And{}
	and.StartPos = left.Pos()
	if la, ok := left.(*ast.And); ok {
		and.Operands = append(la.Operands, right)
	} else {
		and.Operands = []ast.Expr{left, right}
	}
	if right != nil {
		and.EndPos = right.End()
	}
	return and
}

func (p *Parser) parseOrOp(left ast.Expr) ast.Expr {
	prec := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(prec)

	or := &ast.Or{}
	or.StartPos = left.Pos()
	if lo, ok := left.(*ast.Or); ok {
		or.Operands = append(lo.Operands, right)
	} else {
		or.Operands = []ast.Expr{left, right}
	}
	if right != nil {
		or.EndPos = right.End()
	}
	return or
}

// parseInExpression parses `left IN (a, b, c)`, synthesizing the literal
// list as a `tuple(...)` call the way the resolver's function table
// expects it (tuple never appears written out in source text).
func (p *Parser) parseInExpression(left ast.Expr) ast.Expr {
	start := left.Pos()
	if !p.expectPeek(token.LPAREN) {
		return left
	}
	p.nextToken()

	var args []ast.Expr
	if !p.curTokenIs(token.RPAREN) {
		args = p.parseExprList()
		if !p.expectPeek(token.RPAREN) {
			return left
		}
	}

	tuple := &ast.Call{Name: "tuple", Args: args}
	tuple.StartPos = start
	tuple.EndPos = p.curToken.End

	cmp := &ast.CompareOp{Op: token.IN, Left: left, Right: tuple}
	cmp.StartPos = start
	cmp.EndPos = p.curToken.End
	return cmp
}

// parseNotInExpression parses `left NOT IN (...)`, reusing
// parseInExpression and wrapping the result in Not.
func (p *Parser) parseNotInExpression(left ast.Expr) ast.Expr {
	start := left.Pos()
	if !p.expectPeek(token.IN) {
		return left
	}
	in := p.parseInExpression(left)
	n := &ast.Not{Operand: in}
	n.StartPos = start
	n.EndPos = in.End()
	return n
}

// parseIsExpression parses `left IS NULL` and `left IS NOT NULL`.
func (p *Parser) parseIsExpression(left ast.Expr) ast.Expr {
	start := left.Pos()
	negate := false
	if p.peekTokenIs(token.NOT) {
		p.nextToken()
		negate = true
	}
	if !p.expectPeek(token.NULL) {
		return left
	}

	null := &ast.Constant{Value: nil}
	null.StartPos = p.curToken.Pos
	null.EndPos = p.curToken.End

	cmp := &ast.CompareOp{Op: token.IS, Left: left, Right: null}
	cmp.StartPos = start
	cmp.EndPos = p.curToken.End
	if !negate {
		return cmp
	}

	n := &ast.Not{Operand: cmp}
	n.StartPos = start
	n.EndPos = p.curToken.End
	return n
}

// parseCallExpression converts a single-segment Field followed by `(`
// into a Call; AQL function names are never dotted.
func (p *Parser) parseCallExpression(left ast.Expr) ast.Expr {
	field, ok := left.(*ast.Field)
	if !ok || len(field.Chain) != 1 {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrUnexpectedToken,
			"a function call target must be a single identifier")
		return left
	}

	call := &ast.Call{Name: field.Chain[0]}
	call.StartPos = field.Pos()

	p.nextToken() // consume '('
	if p.curTokenIs(token.DISTINCT) {
		call.Distinct = true
		p.nextToken()
	}

	switch {
	case p.curTokenIs(token.STAR):
		if !p.expectPeek(token.RPAREN) {
			return call
		}
	case !p.curTokenIs(token.RPAREN):
		call.Args = p.parseExprList()
		if !p.expectPeek(token.RPAREN) {
			return call
		}
	}

	call.EndPos = p.curToken.End
	return call
}
