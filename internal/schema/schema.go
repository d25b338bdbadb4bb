// Package schema is the canonical, read-only source of truth for which
// physical tables, scalar columns, JSON property bags, and virtual
// relations AQL queries may reference, and how the lazy ones are joined.
package schema

import (
	"sync"

	"github.com/aql-lang/aql/internal/ast"
)

// Options carries the feature flags that change how the registry resolves
// a handful of logical names. PersonOnEventsOverride is the one flag
// spec.md names explicitly: it picks whether `events.person` resolves to
// a LazyJoin (a separate person table reached via a distinct-id hop) or a
// VirtualField (person columns denormalized onto the event row).
type Options struct {
	PersonOnEventsOverride bool
}

// ScalarKind is the declared backend type of a physical column.
type ScalarKind int

const (
	KindString ScalarKind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
	KindUUID
)

func (k ScalarKind) Type() ast.Type {
	switch k {
	case KindInteger:
		return ast.Integer{}
	case KindFloat:
		return ast.Float{}
	case KindBoolean:
		return ast.Boolean{}
	case KindDateTime:
		return ast.DateTime{}
	case KindUUID:
		return ast.UUID{}
	default:
		return ast.String{}
	}
}

// Field is a scalar column declared on a Table.
type Field struct {
	Name   string // logical name as written in AQL
	Column string // backend column name
	Kind   ScalarKind
}

// PropertyBag is the declaration of a table's free-form JSON column.
type PropertyBag struct {
	// Name is the logical field name used to address the bag, almost
	// always "properties".
	Name string
	// Column is the backend JSON column.
	Column string
	// Owner is the catalog owner-type bucket consulted for property
	// types under this bag ("event", "person", ...).
	Owner string
}

// VirtualField is a computed name that resolves to columns denormalized
// onto the *same* row rather than requiring a join — the alternative
// resolution, alongside LazyJoin, for a logical relation name.
type VirtualField struct {
	Name string
	// Columns maps a sub-field name to the backend column it denormalizes
	// to on the anchor table (e.g. "id" -> "person_id").
	Columns map[string]string
	// Properties is the nested property bag reachable through this
	// virtual field, if any (e.g. events.person.properties ->
	// events.person_properties).
	Properties *PropertyBag
}

// JoinStrategy builds the subquery JoinExpr that materializes one hop of
// a LazyJoin. anchorAlias is the alias of the row the join departs from;
// outAlias is the synthesized alias for this hop's rolled-up subquery
// (e.g. "events__pdi"); cols enumerates exactly the columns the join
// planner determined are referenced beyond this hop.
type JoinStrategy func(anchorAlias, outAlias string, cols []Column) *ast.JoinExpr

// Column describes one column a materialized subquery must project,
// either a plain scalar passthrough or a property-bag extraction that the
// property-type transform has already assigned a coercion to.
type Column struct {
	// Plain is set for a plain scalar column passthrough (e.g.
	// "person_id"); the output alias is the same name.
	Plain string
	// PropertyKey is set for a property extraction; the subquery outputs
	// it as "properties___<PropertyKey>".
	PropertyKey string
	// Coercion is only meaningful when PropertyKey != "".
	Coercion ast.Coercion
}

// OutputName is the column name this Column is projected as from the
// rolled-up subquery.
func (c Column) OutputName() string {
	if c.PropertyKey != "" {
		return "properties___" + c.PropertyKey
	}
	return c.Plain
}

// LazyJoin is a schema-declared virtual relation materialized only when a
// query touches a field beyond it.
type LazyJoin struct {
	Name     string
	Target   string // logical name of the target Table
	Strategy JoinStrategy
}

// Table is one physical or logical table in the registry.
type Table struct {
	// Name is the logical name queries address (FROM name / alias base).
	Name string
	// Physical is the backend table name. Equal to Name except where the
	// backend table is named differently (person_distinct_ids is backed by
	// person_distinct_id2). No feature flag changes it.
	Physical string

	Fields        map[string]Field
	LazyJoins     map[string]LazyJoin
	VirtualFields map[string]VirtualField
	Properties    *PropertyBag
}

func newTable(name string) *Table {
	return &Table{
		Name:          name,
		Physical:      name,
		Fields:        map[string]Field{},
		LazyJoins:     map[string]LazyJoin{},
		VirtualFields: map[string]VirtualField{},
	}
}

// Registry is the static, concurrency-safe table of everything a compile
// may reference. Build constructs it once; reads through Table take a read
// lock, and the map is never mutated post-construction.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	opts   Options
}

// Table returns the named logical table, or ok=false if nothing is
// registered under that name — a ConfigurationError at the call site.
func (r *Registry) Table(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// HasField reports whether name resolves to a scalar column on t.
func (t *Table) HasField(name string) bool {
	_, ok := t.Fields[name]
	return ok
}

// ResolveMember looks up name against t's fields, lazy joins, virtual
// fields, and property bag, in that priority order. The returned value
// is one of Field, LazyJoin,
// VirtualField, or *PropertyBag; ok is false when name matches nothing.
func (t *Table) ResolveMember(name string) (any, bool) {
	if f, ok := t.Fields[name]; ok {
		return f, true
	}
	if lj, ok := t.LazyJoins[name]; ok {
		return lj, true
	}
	if vf, ok := t.VirtualFields[name]; ok {
		return vf, true
	}
	if t.Properties != nil && t.Properties.Name == name {
		return t.Properties, true
	}
	return nil, false
}

// Options returns the feature-flag set the registry was built with.
func (r *Registry) Options() Options { return r.opts }
