package planner

import (
	"context"
	"testing"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/parser"
	"github.com/aql-lang/aql/internal/proptype"
	"github.com/aql-lang/aql/internal/resolver"
	"github.com/aql-lang/aql/internal/schema"
)

func compileThroughPlanner(t *testing.T, src string, opts schema.Options) (*ast.SelectQuery, *schema.Registry) {
	t.Helper()
	q, diags := parser.Parse(src)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %+v", diags.Errors())
	}
	registry := schema.Build(opts)
	if diags = resolver.Resolve(q, registry); diags.HasErrors() {
		t.Fatalf("resolve errors: %+v", diags.Errors())
	}
	cache := catalog.NewCache(catalog.NewMemoryCatalog(nil))
	if diags = proptype.Transform(context.Background(), q, cache, 1); diags.HasErrors() {
		t.Fatalf("proptype errors: %+v", diags.Errors())
	}
	if diags = Plan(q, registry); diags.HasErrors() {
		t.Fatalf("plan errors: %+v", diags.Errors())
	}
	return q, registry
}

func TestPlanLeavesChainUntouchedWhenThereAreNoLazyJoins(t *testing.T) {
	q, _ := compileThroughPlanner(t, "select event from events", schema.Options{})
	if q.From.Next != nil {
		t.Fatal("expected no joins to be appended when no lazy join was referenced")
	}
}

func TestPlanMaterializesASingleHopAsASyntheticInnerJoin(t *testing.T) {
	q, _ := compileThroughPlanner(t, "select pdi.distinct_id from events", schema.Options{})

	if q.From.Next == nil {
		t.Fatal("expected one materialized join to be appended")
	}
	if q.From.Next.Kind != ast.InnerJoin {
		t.Fatalf("expected an InnerJoin, got %v", q.From.Next.Kind)
	}
	if !q.From.Next.Synthetic {
		t.Fatal("expected the materialized join to be marked Synthetic")
	}
	if q.From.Next.Alias != "events__pdi" {
		t.Fatalf("expected alias events__pdi, got %q", q.From.Next.Alias)
	}
}

func TestPlanMaterializesTwoChainedHopsInOrder(t *testing.T) {
	q, _ := compileThroughPlanner(t, "select pdi.person.properties.email from events", schema.Options{})

	if q.From.Next == nil || q.From.Next.Next == nil {
		t.Fatalf("expected two chained joins, got chain %#v", q.From)
	}
	if q.From.Next.Alias != "events__pdi" {
		t.Fatalf("first hop alias = %q, want events__pdi", q.From.Next.Alias)
	}
	if q.From.Next.Next.Alias != "events__pdi__person" {
		t.Fatalf("second hop alias = %q, want events__pdi__person", q.From.Next.Next.Alias)
	}
}

func TestPlanDoesNotDuplicateAnAlreadyBoundAlias(t *testing.T) {
	q, _ := compileThroughPlanner(t,
		"select pdi.distinct_id from events left join person_distinct_ids pdi on pdi.distinct_id = events.distinct_id",
		schema.Options{})

	count := 0
	for link := q.From; link != nil; link = link.Next {
		if link.Alias == "pdi" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one link aliased pdi, got %d", count)
	}
}

func TestPlanIsIdempotentWhenRunASecondTime(t *testing.T) {
	q, registry := compileThroughPlanner(t, "select pdi.person.properties.email from events", schema.Options{})

	before := fromChainAliases(q.From)

	if diags := Plan(q, registry); diags.HasErrors() {
		t.Fatalf("second plan errors: %+v", diags.Errors())
	}

	after := fromChainAliases(q.From)
	if len(before) != len(after) {
		t.Fatalf("expected the FROM chain length to stay the same after a second Plan call, got %d then %d links", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("FROM chain alias at position %d changed from %q to %q after a second Plan call", i, before[i], after[i])
		}
	}
}

func fromChainAliases(link *ast.JoinExpr) []string {
	var out []string
	for ; link != nil; link = link.Next {
		out = append(out, link.Alias)
	}
	return out
}

func TestPlanSkipsNestedSubqueriesMaterializationNamespace(t *testing.T) {
	q, _ := compileThroughPlanner(t,
		"select outer_alias.x from (select pdi.distinct_id as x from events) as outer_alias",
		schema.Options{})

	if q.From.Next != nil {
		t.Fatal("expected the outer query's own FROM chain to carry no materialized join")
	}

	sub := q.From.Target.(*ast.TableRef).Select
	if sub.From.Next == nil {
		t.Fatal("expected the inner subquery's FROM chain to carry its own materialized join")
	}
}
