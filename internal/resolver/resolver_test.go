package resolver

import (
	"fmt"
	"testing"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/parser"
	"github.com/aql-lang/aql/internal/schema"
)

func parseAndResolve(t *testing.T, src string, opts schema.Options) (*ast.SelectQuery, *schema.Registry) {
	t.Helper()
	q, diags := parser.Parse(src)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(opts)
	diags = Resolve(q, registry)
	if diags.HasErrors() {
		t.Fatalf("unexpected resolve errors: %+v", diags.Errors())
	}
	return q, registry
}

func TestResolveBindsPlainFieldToFieldType(t *testing.T) {
	q, _ := parseAndResolve(t, "select event from events", schema.Options{})

	f, ok := q.Select[0].(*ast.Field)
	if !ok {
		t.Fatalf("expected a *ast.Field, got %T", q.Select[0])
	}
	ft, ok := f.NodeType().(*ast.FieldType)
	if !ok {
		t.Fatalf("expected a *ast.FieldType, got %T", f.NodeType())
	}
	if ft.Column != "event" || ft.Table.Alias != "events" {
		t.Fatalf("unexpected FieldType: %+v", ft)
	}
}

func TestResolveExpandsBareAsteriskToAllTableFields(t *testing.T) {
	q, _ := parseAndResolve(t, "select * from events", schema.Options{})

	if len(q.Select) == 0 {
		t.Fatal("expected the asterisk to expand to at least one field")
	}
	for _, item := range q.Select {
		if _, ok := item.(*ast.Asterisk); ok {
			t.Fatal("expected no Asterisk node to survive resolution")
		}
	}
}

func TestResolveBindsPropertyBagAccessToPropertyType(t *testing.T) {
	q, _ := parseAndResolve(t, "select properties.revenue from events", schema.Options{})

	f := q.Select[0].(*ast.Field)
	pt, ok := f.NodeType().(*ast.PropertyType)
	if !ok {
		t.Fatalf("expected a *ast.PropertyType, got %T", f.NodeType())
	}
	if pt.Owner != "event" || pt.BagColumn != "properties" || len(pt.KeyPath) != 1 || pt.KeyPath[0] != "revenue" {
		t.Fatalf("unexpected PropertyType: %+v", pt)
	}
}

func TestResolveRecordsMaterializationPathForLazyJoinChain(t *testing.T) {
	q, _ := parseAndResolve(t, "select pdi.person.properties.email from events", schema.Options{PersonOnEventsOverride: false})

	if len(q.MaterializationRequests) != 2 {
		t.Fatalf("expected two materialization hops (pdi, pdi.person), got %d: %+v", len(q.MaterializationRequests), q.MaterializationRequests)
	}
}

func TestResolveVirtualFieldSkipsMaterializationUnderOverride(t *testing.T) {
	q, _ := parseAndResolve(t, "select person.properties.email from events", schema.Options{PersonOnEventsOverride: true})

	if len(q.MaterializationRequests) != 0 {
		t.Fatalf("expected no materialization hops under PERSON_ON_EVENTS_OVERRIDE, got %+v", q.MaterializationRequests)
	}
}

func TestResolveReportsUnknownTable(t *testing.T) {
	q, diags := parser.Parse("select event from nope")
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(schema.Options{})
	diags = Resolve(q, registry)
	if !diags.HasErrors() {
		t.Fatal("expected an error for an unknown table")
	}
}

func TestResolveReportsUnknownColumn(t *testing.T) {
	q, diags := parser.Parse("select not_a_real_column from events")
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(schema.Options{})
	diags = Resolve(q, registry)
	if !diags.HasErrors() {
		t.Fatal("expected an error for an unresolvable column")
	}
}

func TestResolveReportsCannotDotIntoScalarColumn(t *testing.T) {
	q, diags := parser.Parse("select event.nope from events")
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(schema.Options{})
	diags = Resolve(q, registry)
	if !diags.HasErrors() {
		t.Fatal("expected an error when dotting into a scalar column")
	}
}

func TestResolveReportsCyclicLazyJoin(t *testing.T) {
	noop := func(string, string, []schema.Column) *ast.JoinExpr { return nil }

	a := &schema.Table{
		Name: "a", Physical: "a",
		Fields:        map[string]schema.Field{},
		LazyJoins:     map[string]schema.LazyJoin{},
		VirtualFields: map[string]schema.VirtualField{},
	}
	b := &schema.Table{
		Name: "b", Physical: "b",
		Fields:        map[string]schema.Field{},
		LazyJoins:     map[string]schema.LazyJoin{},
		VirtualFields: map[string]schema.VirtualField{},
	}
	a.LazyJoins["b"] = schema.LazyJoin{Name: "b", Target: "b", Strategy: noop}
	b.LazyJoins["a"] = schema.LazyJoin{Name: "a", Target: "a", Strategy: noop}

	registry := schema.NewRegistry(schema.Options{}, map[string]*schema.Table{"a": a, "b": b})

	q, diags := parser.Parse("select b.a.b from a")
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %+v", diags.Errors())
	}
	if diags = Resolve(q, registry); !diags.HasErrors() {
		t.Fatal("expected an error for a lazy join that loops back on itself")
	}
}

func TestResolveReportsNestedTooDeep(t *testing.T) {
	src := "select event from events"
	for i := 0; i < 5; i++ {
		src = fmt.Sprintf("select event from (%s) as s%d", src, i)
	}

	q, diags := parser.Parse(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(schema.Options{})
	if diags = Resolve(q, registry); !diags.HasErrors() {
		t.Fatal("expected an error for a query nested past the maximum depth")
	}
}

func TestResolveBindsExplicitJoinAliasAgainstPreviousLinks(t *testing.T) {
	q, _ := parseAndResolve(t,
		"select events.event from events left join person_distinct_ids on events.distinct_id = person_distinct_ids.distinct_id",
		schema.Options{})

	if q.From.Next == nil {
		t.Fatal("expected a second FROM-chain link for the explicit join")
	}
	if q.From.Next.On == nil {
		t.Fatal("expected the join's ON condition to be present")
	}
}
