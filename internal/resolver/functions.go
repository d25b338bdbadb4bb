package resolver

import "github.com/aql-lang/aql/internal/ast"

// funcSig describes one whitelisted function: its arity, whether it is an
// aggregate (illegal in WHERE/PREWHERE/GROUP BY), and how to compute its
// return type from its resolved argument types.
type funcSig struct {
	minArgs    int
	maxArgs    int // -1 means unbounded
	aggregate  bool
	returnType func(args []ast.Type) ast.Type
}

func constType(t ast.Type) func([]ast.Type) ast.Type {
	return func([]ast.Type) ast.Type { return t }
}

func passthroughType(def ast.Type) func([]ast.Type) ast.Type {
	return func(args []ast.Type) ast.Type {
		if len(args) == 0 {
			return def
		}
		return args[0]
	}
}

// functionTable is the whitelist consulted by the resolver when it
// encounters a Call node. A Call naming anything not listed here is an
// UnknownFunction error.
var functionTable = map[string]funcSig{
	"count":    {minArgs: 0, maxArgs: 1, aggregate: true, returnType: constType(ast.Integer{})},
	"sum":      {minArgs: 1, maxArgs: 1, aggregate: true, returnType: constType(ast.Float{})},
	"avg":      {minArgs: 1, maxArgs: 1, aggregate: true, returnType: constType(ast.Float{})},
	"min":      {minArgs: 1, maxArgs: 1, aggregate: true, returnType: passthroughType(ast.Unknown{})},
	"max":      {minArgs: 1, maxArgs: 1, aggregate: true, returnType: passthroughType(ast.Unknown{})},
	"now":      {minArgs: 0, maxArgs: 0, returnType: constType(ast.DateTime{})},
	"toString": {minArgs: 1, maxArgs: 1, returnType: constType(ast.String{})},
	"toInt":    {minArgs: 1, maxArgs: 1, returnType: constType(ast.Integer{})},
	"toFloat":  {minArgs: 1, maxArgs: 1, returnType: constType(ast.Float{})},
	"coalesce": {minArgs: 1, maxArgs: -1, returnType: passthroughType(ast.Unknown{})},
	// tuple is synthesized by the parser for an `IN (a, b, c)` literal list;
	// it never appears in source text as a call.
	"tuple": {minArgs: 0, maxArgs: -1, returnType: constType(ast.Unknown{})},
}
