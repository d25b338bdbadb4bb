package schema

import (
	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/token"
)

// NewRegistry assembles a registry directly from a caller-supplied table
// set, bypassing Build's fixed person/person_distinct_ids/events wiring.
// Exposed for callers that need a registry shaped differently from the
// shipped default, e.g. a test exercising a schema-level failure mode
// (a cyclic lazy join) the shipped schema never actually produces.
func NewRegistry(opts Options, tables map[string]*Table) *Registry {
	return &Registry{tables: tables, opts: opts}
}

// Build constructs the registry this compiler ships with: the event
// stream, the person table, and the person-distinct-id bridge table that
// links them, with person and person_distinct_ids each declared as an
// argMax rollup over a versioned, soft-deletable physical table.
func Build(opts Options) *Registry {
	r := &Registry{tables: map[string]*Table{}, opts: opts}

	person := newTable("person")
	person.Fields["id"] = Field{Name: "id", Column: "id", Kind: KindUUID}
	person.Fields["created_at"] = Field{Name: "created_at", Column: "created_at", Kind: KindDateTime}
	person.Fields["version"] = Field{Name: "version", Column: "version", Kind: KindInteger}
	person.Fields["is_deleted"] = Field{Name: "is_deleted", Column: "is_deleted", Kind: KindBoolean}
	person.Properties = &PropertyBag{Name: "properties", Column: "properties", Owner: "person"}
	r.tables["person"] = person
	// "persons" is the plural AQL-surface name for the same physical table.
	r.tables["persons"] = person

	pdi := newTable("person_distinct_ids")
	pdi.Physical = "person_distinct_id2"
	pdi.Fields["distinct_id"] = Field{Name: "distinct_id", Column: "distinct_id", Kind: KindString}
	pdi.Fields["person_id"] = Field{Name: "person_id", Column: "person_id", Kind: KindUUID}
	pdi.Fields["version"] = Field{Name: "version", Column: "version", Kind: KindInteger}
	pdi.Fields["is_deleted"] = Field{Name: "is_deleted", Column: "is_deleted", Kind: KindBoolean}
	pdi.LazyJoins["person"] = LazyJoin{Name: "person", Target: "person", Strategy: personRollupStrategy(r)}
	r.tables["person_distinct_ids"] = pdi

	events := newTable("events")
	events.Fields["uuid"] = Field{Name: "uuid", Column: "uuid", Kind: KindUUID}
	events.Fields["event"] = Field{Name: "event", Column: "event", Kind: KindString}
	events.Fields["timestamp"] = Field{Name: "timestamp", Column: "timestamp", Kind: KindDateTime}
	events.Fields["distinct_id"] = Field{Name: "distinct_id", Column: "distinct_id", Kind: KindString}
	events.Properties = &PropertyBag{Name: "properties", Column: "properties", Owner: "event"}

	if opts.PersonOnEventsOverride {
		events.Fields["person_id"] = Field{Name: "person_id", Column: "person_id", Kind: KindUUID}
		events.VirtualFields["person"] = VirtualField{
			Name:       "person",
			Columns:    map[string]string{"id": "person_id"},
			Properties: &PropertyBag{Name: "properties", Column: "person_properties", Owner: "person"},
		}
	} else {
		// events.person is reached through the distinct-id bridge table:
		// events.pdi.person. There is no single-hop shortcut registered
		// here because events carries no person_id column to join person
		// on directly in this mode; person_distinct_ids.LazyJoins["person"]
		// (registered above) supplies the second hop.
		events.LazyJoins["pdi"] = LazyJoin{Name: "pdi", Target: "person_distinct_ids", Strategy: pdiRollupStrategy(r)}
	}
	r.tables["events"] = events

	return r
}

// rolledUpTableType returns a non-materialized TableType for the physical
// source table a rollup strategy selects from (e.g. person_distinct_id2
// itself), used to build Field nodes inside the synthesized subquery.
func rolledUpTableType(t *Table) *ast.TableType {
	return &ast.TableType{Name: t.Name, Physical: t.Physical, Alias: t.Physical}
}

func scalarField(tt *ast.TableType, f Field) *ast.Field {
	return &ast.Field{
		Chain:  []string{f.Name},
		Symbol: ast.Symbol{Path: []ast.Type{&ast.FieldType{Table: tt, Name: f.Name, Column: f.Column, Scalar: f.Kind.Type()}}},
	}
}

func propertyField(tt *ast.TableType, bag PropertyBag, key string, coercion ast.Coercion) *ast.Field {
	return &ast.Field{
		Chain: []string{bag.Name, key},
		Symbol: ast.Symbol{Path: []ast.Type{&ast.PropertyType{
			Table:     tt,
			BagColumn: bag.Column,
			Owner:     bag.Owner,
			KeyPath:   []string{key},
			Coercion:  coercion,
		}}},
	}
}

// argMax builds `argMax(valueExpr, versionExpr)`.
func argMax(value ast.Expr, version ast.Expr) *ast.Call {
	return &ast.Call{Name: "argMax", Args: []ast.Expr{value, version}}
}

func alias(inner ast.Expr, name string) *ast.Alias {
	return &ast.Alias{Inner: inner, Name: name}
}

// pdiRollupStrategy rolls up person_distinct_id2 to one live row per
// distinct_id, carrying person_id (always, since it anchors the next hop)
// plus whatever additional plain columns the outer query asked for.
func pdiRollupStrategy(r *Registry) JoinStrategy {
	return func(anchorAlias, outAlias string, cols []Column) *ast.JoinExpr {
		src, _ := r.Table("person_distinct_ids")
		tt := rolledUpTableType(src)

		distinctIDField := src.Fields["distinct_id"]
		versionField := src.Fields["version"]
		isDeletedField := src.Fields["is_deleted"]

		// distinct_id is always projected bare below (it anchors the
		// outer GROUP BY), so it never needs its own argMax rollup even
		// when the outer query references it directly.
		need := map[string]bool{"person_id": true}
		for _, c := range cols {
			if c.Plain != "" && c.Plain != "distinct_id" {
				need[c.Plain] = true
			}
		}

		var selectList []ast.Expr
		for _, name := range sortedKeys(need) {
			f := src.Fields[name]
			selectList = append(selectList, alias(argMax(scalarField(tt, f), scalarField(tt, versionField)), name))
		}
		selectList = append(selectList, scalarField(tt, distinctIDField))

		sub := &ast.SelectQuery{
			Select:  selectList,
			From:    &ast.JoinExpr{Target: &ast.TableRef{Name: src.Physical}, Alias: tt.Alias},
			GroupBy: []ast.Expr{scalarField(tt, distinctIDField)},
			Having:  &ast.CompareOp{Op: token.ASSIGN, Left: argMax(scalarField(tt, isDeletedField), scalarField(tt, versionField)), Right: &ast.Constant{Value: int64(0), Literal: true}},
		}

		outTT := &ast.TableType{Name: outAlias, Alias: outAlias, Materialized: true}
		return &ast.JoinExpr{
			Target:    &ast.TableRef{Select: sub},
			Alias:     outAlias,
			Kind:      ast.InnerJoin,
			Synthetic: true,
			On: &ast.CompareOp{
				Op:    token.ASSIGN,
				Left:  scalarField(&ast.TableType{Name: anchorAlias, Alias: anchorAlias}, distinctIDField),
				Right: scalarField(outTT, distinctIDField),
			},
		}
	}
}

// personRollupStrategy rolls up person to one live row per id, carrying id
// (always, since it anchors the ON condition) plus any requested plain
// columns or coerced property extractions.
func personRollupStrategy(r *Registry) JoinStrategy {
	return func(anchorAlias, outAlias string, cols []Column) *ast.JoinExpr {
		src, _ := r.Table("person")
		tt := rolledUpTableType(src)

		idField := src.Fields["id"]
		versionField := src.Fields["version"]
		isDeletedField := src.Fields["is_deleted"]

		var selectList []ast.Expr
		for _, c := range cols {
			switch {
			case c.PropertyKey != "":
				pf := propertyField(tt, *src.Properties, c.PropertyKey, c.Coercion)
				selectList = append(selectList, alias(argMax(pf, scalarField(tt, versionField)), c.OutputName()))
			case c.Plain != "" && c.Plain != "id":
				f := src.Fields[c.Plain]
				selectList = append(selectList, alias(argMax(scalarField(tt, f), scalarField(tt, versionField)), c.Plain))
			}
		}
		selectList = append(selectList, scalarField(tt, idField))

		sub := &ast.SelectQuery{
			Select:  selectList,
			From:    &ast.JoinExpr{Target: &ast.TableRef{Name: src.Physical}, Alias: tt.Alias},
			GroupBy: []ast.Expr{scalarField(tt, idField)},
			Having:  &ast.CompareOp{Op: token.ASSIGN, Left: argMax(scalarField(tt, isDeletedField), scalarField(tt, versionField)), Right: &ast.Constant{Value: int64(0), Literal: true}},
		}

		outTT := &ast.TableType{Name: outAlias, Alias: outAlias, Materialized: true}
		return &ast.JoinExpr{
			Target:    &ast.TableRef{Select: sub},
			Alias:     outAlias,
			Kind:      ast.InnerJoin,
			Synthetic: true,
			On: &ast.CompareOp{
				Op:    token.ASSIGN,
				Left:  scalarField(&ast.TableType{Name: anchorAlias, Alias: anchorAlias}, Field{Name: "person_id", Column: "person_id"}),
				Right: scalarField(outTT, idField),
			},
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// person_id first (if present) for a deterministic column order; the
	// rest follow in lexical order.
	for i := range out {
		if out[i] == "person_id" {
			out[0], out[i] = out[i], out[0]
			break
		}
	}
	if len(out) > 1 {
		rest := out[1:]
		for i := 1; i < len(rest); i++ {
			for j := i; j > 0 && rest[j] < rest[j-1]; j-- {
				rest[j], rest[j-1] = rest[j-1], rest[j]
			}
		}
	}
	return out
}
