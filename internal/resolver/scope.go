package resolver

import "github.com/aql-lang/aql/internal/ast"

// Visibility selects which scope-resolution rule applies to the clause
// currently being resolved: encode it as a small enumeration of
// visibility modes passed with the scope rather than per-clause
// conditionals.
type Visibility int

const (
	// ModeNoAliases is used for WHERE, PREWHERE, and GROUP BY: SELECT-list
	// aliases are not visible.
	ModeNoAliases Visibility = iota
	// ModeAliasesVisible is used for HAVING and ORDER BY: SELECT-list
	// aliases are visible alongside FROM/JOIN aliases and table columns.
	ModeAliasesVisible
)

// tableEntry is one FROM/JOIN source visible in a scope.
type tableEntry struct {
	alias string
	typ   *ast.TableType
}

// Scope mirrors the SELECT nesting: one Scope is pushed on SelectQuery
// entry and popped on exit, forming a stack attached to each query
// being resolved.
type Scope struct {
	tables      []tableEntry
	aliasByName map[string]*ast.TableType

	selectOrder   []string
	selectAliases map[string]ast.Type
}

func newScope() *Scope {
	return &Scope{
		aliasByName:   map[string]*ast.TableType{},
		selectAliases: map[string]ast.Type{},
	}
}

func (s *Scope) addTable(alias string, tt *ast.TableType) {
	s.tables = append(s.tables, tableEntry{alias: alias, typ: tt})
	s.aliasByName[alias] = tt
}

func (s *Scope) lookupAlias(name string) (*ast.TableType, bool) {
	tt, ok := s.aliasByName[name]
	return tt, ok
}

func (s *Scope) addSelectAlias(name string, t ast.Type) {
	if _, exists := s.selectAliases[name]; !exists {
		s.selectOrder = append(s.selectOrder, name)
	}
	s.selectAliases[name] = t
}

func (s *Scope) lookupSelectAlias(name string) (ast.Type, bool) {
	t, ok := s.selectAliases[name]
	return t, ok
}

// visibleTables returns every FROM/JOIN table visible in this scope, in
// FROM-visitation order.
func (s *Scope) visibleTables() []tableEntry {
	return s.tables
}
