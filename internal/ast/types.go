package ast

// Type is the closed sum of every type an expression or symbol can carry
// after resolution: scalar types plus the structural types described in
// the data model (FieldType, PropertyType, TableType, LazyJoinType,
// SelectQueryType, SelectQueryAliasType, FieldAliasType, VirtualFieldType,
// AsteriskType).
type Type interface {
	typeNode()
	String() string
}

// --- scalar types ---

type Integer struct{}
type Float struct{}
type Boolean struct{}
type String struct{}
type DateTime struct{}
type UUID struct{}
type Unknown struct{}

func (Integer) typeNode()  {}
func (Float) typeNode()    {}
func (Boolean) typeNode()  {}
func (String) typeNode()   {}
func (DateTime) typeNode() {}
func (UUID) typeNode()     {}
func (Unknown) typeNode()  {}

func (Integer) String() string  { return "Integer" }
func (Float) String() string    { return "Float" }
func (Boolean) String() string  { return "Boolean" }
func (String) String() string   { return "String" }
func (DateTime) String() string { return "DateTime" }
func (UUID) String() string     { return "UUID" }
func (Unknown) String() string  { return "Unknown" }

// IsNumeric reports whether t is Integer or Float.
func IsNumeric(t Type) bool {
	switch t.(type) {
	case Integer, Float:
		return true
	default:
		return false
	}
}

// --- structural types ---

// TableType names a FROM/JOIN source: either a physical table leaf, or a
// nested subquery wrapped as SelectQueryType.
type TableType struct {
	// Name is the logical table name (as declared in the schema registry),
	// e.g. "events", "person", "person_distinct_ids".
	Name string
	// Physical is the backend table name actually emitted in SQL. For most
	// tables this equals Name; person_distinct_ids (backed by
	// person_distinct_id2) is where the two diverge (see schema.Build).
	// PERSON_ON_EVENTS_OVERRIDE does not change it: events is always
	// emitted as events.
	Physical string
	// Alias is the FROM/JOIN alias bound to this table in the enclosing
	// query (explicit alias, or the table's own name when none given).
	Alias string
	// Select is non-nil when this TableType wraps a nested SelectQuery
	// rather than a physical leaf table.
	Select *SelectQueryType
	// Materialized marks a synthetic alias produced by the join planner
	// for a rolled-up lazy-join subquery. The printer never injects a
	// tenant predicate for a materialized alias (the predicate already
	// lives inside the subquery it wraps).
	Materialized bool
}

func (*TableType) typeNode() {}
func (t *TableType) String() string {
	if t.Alias != "" && t.Alias != t.Name {
		return t.Name + " AS " + t.Alias
	}
	return t.Name
}

// FieldType is a resolved scalar column reference on a TableType.
type FieldType struct {
	Table  *TableType
	Name   string // logical column name as written in AQL
	Column string // backend column name
	Scalar Type   // the column's scalar type
}

func (*FieldType) typeNode()     {}
func (f *FieldType) String() string { return f.Table.Alias + "." + f.Name }

// PropertyType is a JSON property-bag leaf access, not yet coerced. Owner
// identifies which catalog bucket ("event", "person", ...) governs the
// property's declared type.
type PropertyType struct {
	Table *TableType
	// BagColumn is the backend JSON column holding the property bag
	// (usually "properties", but PERSON_ON_EVENTS_OVERRIDE introduces a
	// second bag such as "person_properties" on the same row).
	BagColumn string
	// Owner is the catalog owner-type bucket for this bag ("event",
	// "person", ...).
	Owner string
	// KeyPath is the dotted JSON key path beyond the bag, e.g.
	// ["$screen_width"] for `properties.$screen_width`.
	KeyPath []string
	// Coercion is filled in by the property-type transform; it is
	// CoerceNone until that pass runs.
	Coercion Coercion
}

func (*PropertyType) typeNode() {}
func (p *PropertyType) String() string {
	return p.Table.Alias + "." + p.BagColumn + "." + joinDot(p.KeyPath)
}

func joinDot(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// Coercion is the property-type-transform's decision for how a property
// leaf must be wrapped at print time.
type Coercion int

const (
	CoerceNone Coercion = iota
	CoerceNumeric
	CoerceDateTime
	CoerceBoolean
)

// LazyJoinType is the synthetic symbol introduced when a Field chain
// crosses a schema-declared virtual relation. It records the
// materialization path so the join planner can later synthesize the
// subquery join; once materialized, further segments resolve against
// Target (a TableType whose Alias is the path's synthesized alias).
type LazyJoinType struct {
	Path   MaterializationPath
	Target *TableType
}

func (*LazyJoinType) typeNode()        {}
func (l *LazyJoinType) String() string { return l.Path.Alias() }

// SelectQueryType is the resolved type of a SelectQuery: the ordered list
// of output column names it projects (SELECT-list aliases, or the
// terminal field/property name when unaliased).
type SelectQueryType struct {
	Columns []string
}

func (*SelectQueryType) typeNode()     {}
func (*SelectQueryType) String() string { return "SelectQuery" }

// SelectQueryAliasType binds a FROM/JOIN alias to a nested SelectQueryType.
type SelectQueryAliasType struct {
	Alias string
	Query *SelectQueryType
}

func (*SelectQueryAliasType) typeNode()        {}
func (s *SelectQueryAliasType) String() string { return s.Alias }

// FieldAliasType is the type of a SELECT-list `expr AS name` alias.
type FieldAliasType struct {
	Name  string
	Inner Type
}

func (*FieldAliasType) typeNode()        {}
func (f *FieldAliasType) String() string { return f.Name }

// VirtualFieldType is a computed expression resolved in terms of the same
// row (e.g. `person` on `events` when PERSON_ON_EVENTS_OVERRIDE is set).
type VirtualFieldType struct {
	Table *TableType
	Name  string
	Inner Type
}

func (*VirtualFieldType) typeNode()        {}
func (v *VirtualFieldType) String() string { return v.Name }

// AsteriskType is the type of a bare `*` in a SELECT list. Table is nil
// when the asterisk expands every visible table (unqualified `*`).
type AsteriskType struct {
	Table *TableType
}

func (*AsteriskType) typeNode()        {}
func (*AsteriskType) String() string   { return "*" }

var (
	_ Type = Integer{}
	_ Type = Float{}
	_ Type = Boolean{}
	_ Type = String{}
	_ Type = DateTime{}
	_ Type = UUID{}
	_ Type = Unknown{}
	_ Type = (*TableType)(nil)
	_ Type = (*FieldType)(nil)
	_ Type = (*PropertyType)(nil)
	_ Type = (*LazyJoinType)(nil)
	_ Type = (*SelectQueryType)(nil)
	_ Type = (*SelectQueryAliasType)(nil)
	_ Type = (*FieldAliasType)(nil)
	_ Type = (*VirtualFieldType)(nil)
	_ Type = (*AsteriskType)(nil)
)
