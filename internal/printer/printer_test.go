package printer

import (
	"context"
	"strings"
	"testing"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/parser"
	"github.com/aql-lang/aql/internal/planner"
	"github.com/aql-lang/aql/internal/proptype"
	"github.com/aql-lang/aql/internal/resolver"
	"github.com/aql-lang/aql/internal/schema"
)

// compile runs the full pipeline (parse, substitute, resolve, coerce,
// plan) a caller would otherwise reach through the aql driver package,
// returning the tree ready for printing.
func compile(t *testing.T, src string, placeholders map[string]ast.Expr, cat catalog.Catalog, opts schema.Options, tenantID int64) *ast.SelectQuery {
	t.Helper()
	q, diags := parser.Parse(src)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.Errors())
	}
	if placeholders != nil {
		if diags := parser.Substitute(q, placeholders); diags.HasErrors() {
			t.Fatalf("substitute errors: %v", diags.Errors())
		}
	}
	registry := schema.Build(opts)
	if diags := resolver.Resolve(q, registry); diags.HasErrors() {
		t.Fatalf("resolve errors: %v", diags.Errors())
	}
	cache := catalog.NewCache(cat)
	if diags := proptype.Transform(context.Background(), q, cache, tenantID); diags.HasErrors() {
		t.Fatalf("proptype errors: %v", diags.Errors())
	}
	if diags := planner.Plan(q, registry); diags.HasErrors() {
		t.Fatalf("plan errors: %v", diags.Errors())
	}
	return q
}

func stringConst(v string) ast.Expr {
	return &ast.Constant{Value: v}
}

// S1: tenant predicate + property comparison bound values, default LIMIT.
func TestPrintInjectsTenantPredicateAndBindsPlaceholders(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t,
		"select count(), event from events where properties.random_uuid = {u} group by event",
		map[string]ast.Expr{"u": stringConst("abc")},
		cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	want := `SELECT count(), events.event FROM events WHERE and(equals(events.team_id, 7), equals(replaceRegexpAll(JSONExtractRaw(events.properties, %(hogql_val_0)s), '^"|"$', ''), %(hogql_val_1)s)) GROUP BY events.event LIMIT 100`
	if out.BackendSQL != want {
		t.Fatalf("backend sql =\n%s\nwant\n%s", out.BackendSQL, want)
	}
	if out.BoundValues["hogql_val_0"] != "random_uuid" {
		t.Fatalf("hogql_val_0 = %v, want %q", out.BoundValues["hogql_val_0"], "random_uuid")
	}
	if out.BoundValues["hogql_val_1"] != "abc" {
		t.Fatalf("hogql_val_1 = %v, want %q", out.BoundValues["hogql_val_1"], "abc")
	}
}

// S2: DISTINCT, a single-predicate WHERE (no `and(...)` wrapper needed).
func TestPrintDistinctWithSingleTenantPredicate(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t, "select distinct properties.sneaky_mail from persons", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	want := `SELECT DISTINCT replaceRegexpAll(JSONExtractRaw(person.properties, %(hogql_val_0)s), '^"|"$', '') FROM person WHERE equals(person.team_id, 7) LIMIT 100`
	if out.BackendSQL != want {
		t.Fatalf("backend sql =\n%s\nwant\n%s", out.BackendSQL, want)
	}
}

// S3: a lazy-join hop materializes into an INNER JOIN against a rolled-up
// subquery aliased by the anchor+hop path, and the outer WHERE carries
// only the tenant predicate for the base table.
func TestPrintMaterializesLazyJoinAsSubquery(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t, "SELECT event, timestamp, pdi.distinct_id, pdi.person_id FROM events LIMIT 10", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.Contains(out.BackendSQL, "INNER JOIN (") {
		t.Fatalf("expected a materialized INNER JOIN, got:\n%s", out.BackendSQL)
	}
	if !strings.Contains(out.BackendSQL, "AS events__pdi") {
		t.Fatalf("expected the materialized alias events__pdi, got:\n%s", out.BackendSQL)
	}
	if !strings.Contains(out.BackendSQL, "WHERE equals(events.team_id, 7)") {
		t.Fatalf("expected the outer WHERE to carry only the base tenant predicate, got:\n%s", out.BackendSQL)
	}
	if !strings.Contains(out.BackendSQL, "LIMIT 10") {
		t.Fatalf("expected the explicit LIMIT 10 to survive, got:\n%s", out.BackendSQL)
	}
}

// S6: two numeric-coerced properties multiplied together.
func TestPrintWrapsNumericCoercionAroundArithmetic(t *testing.T) {
	cat := catalog.NewMemoryCatalog(map[catalog.Key]catalog.PropertyType{
		{Owner: "event", Name: "$screen_width", TenantID: 7}:  catalog.TypeNumeric,
		{Owner: "event", Name: "$screen_height", TenantID: 7}: catalog.TypeNumeric,
	})
	q := compile(t, "select properties.$screen_width * properties.$screen_height from events", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.HasPrefix(out.BackendSQL, "SELECT multiply(toFloat64OrNull(") {
		t.Fatalf("expected a multiply() of two toFloat64OrNull() wraps, got:\n%s", out.BackendSQL)
	}
}

// Dual-output consistency (property #5). Re-parsing and re-compiling the AQL-mode
// output of a lazy-join query must reach the same backend SQL as the
// original compile, not a drifted re-materialization under a different
// alias or join shape.
func TestPrintAQLModeRoundTripsToTheSameBackendSQL(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t, "SELECT event, pdi.distinct_id, pdi.person_id FROM events", nil, cat, schema.Options{}, 7)

	first, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	q2 := compile(t, first.AQLSQL, nil, cat, schema.Options{}, 7)
	second, diags := Print(q2, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("round-trip print errors: %v", diags.Errors())
	}

	if second.BackendSQL != first.BackendSQL {
		t.Fatalf("round-trip backend sql drifted:\nfirst:  %s\nsecond: %s", first.BackendSQL, second.BackendSQL)
	}
}

// A property declared DateTime in the catalog is wrapped in
// parseDateTime64BestEffortOrNull rather than left as a raw JSON string.
func TestPrintWrapsDateTimeCoercionAroundPropertyAccess(t *testing.T) {
	cat := catalog.NewMemoryCatalog(map[catalog.Key]catalog.PropertyType{
		{Owner: "event", Name: "$session_started_at", TenantID: 7}: catalog.TypeDateTime,
	})
	q := compile(t, "select properties.$session_started_at from events", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.Contains(out.BackendSQL, "parseDateTime64BestEffortOrNull(replaceRegexpAll(JSONExtractRaw(events.properties,") {
		t.Fatalf("expected a parseDateTime64BestEffortOrNull wrap, got:\n%s", out.BackendSQL)
	}
}

// A property declared Boolean in the catalog is rendered as an equals()
// comparison against the literal string "true" rather than left raw.
func TestPrintWrapsBooleanCoercionAroundPropertyAccess(t *testing.T) {
	cat := catalog.NewMemoryCatalog(map[catalog.Key]catalog.PropertyType{
		{Owner: "event", Name: "$is_active", TenantID: 7}: catalog.TypeBoolean,
	})
	q := compile(t, "select properties.$is_active from events", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.Contains(out.BackendSQL, "equals(replaceRegexpAll(JSONExtractRaw(events.properties,") {
		t.Fatalf("expected an equals() wrap around the raw extraction, got:\n%s", out.BackendSQL)
	}
	if out.BoundValues["hogql_val_1"] != "true" {
		t.Fatalf("expected the boolean comparison's bound value to be %q, got %v", "true", out.BoundValues["hogql_val_1"])
	}
}

// AQL-mode output never carries tenant predicates, never expands JSON
// property access, and reconstructs the original dotted chain instead of
// the materialized join the backend pass produces.
func TestPrintAQLModeOmitsTenantPredicateAndJSONExpansion(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t, "SELECT event, pdi.distinct_id FROM events", nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if strings.Contains(out.AQLSQL, "team_id") {
		t.Fatalf("AQL output must not carry a tenant predicate, got:\n%s", out.AQLSQL)
	}
	if strings.Contains(out.AQLSQL, "JOIN") {
		t.Fatalf("AQL output must not show the materialized join, got:\n%s", out.AQLSQL)
	}
	if !strings.Contains(out.AQLSQL, "pdi.distinct_id") {
		t.Fatalf("AQL output must reconstruct the original dotted chain, got:\n%s", out.AQLSQL)
	}
}

// S8: selecting a named column out of a subquery resolves against that
// subquery's own output columns, and the inner query keeps no LIMIT of
// its own even though the outer query gets the default injected.
func TestPrintNestedSubqueryReaggregation(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t,
		"select count, event from (select count() as count, event from events group by event) group by count, event",
		nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.HasSuffix(out.BackendSQL, "LIMIT 100") {
		t.Fatalf("expected the outer query to get the default LIMIT, got:\n%s", out.BackendSQL)
	}
	if strings.Count(out.BackendSQL, "LIMIT") != 1 {
		t.Fatalf("expected exactly one LIMIT (none inside the subquery), got:\n%s", out.BackendSQL)
	}
}

// S9: an explicit hand-written join against a physical table still gets a
// tenant predicate, not only planner-synthesized joins.
func TestPrintExplicitJoinStillGetsTenantPredicate(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t,
		"SELECT event FROM events LEFT JOIN person_distinct_ids ON events.distinct_id = person_distinct_ids.distinct_id",
		nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.Contains(out.BackendSQL, "equals(events.team_id, 7)") {
		t.Fatalf("expected a tenant predicate for events, got:\n%s", out.BackendSQL)
	}
	if !strings.Contains(out.BackendSQL, "equals(person_distinct_ids.team_id, 7)") {
		t.Fatalf("expected a tenant predicate for the explicit join target, got:\n%s", out.BackendSQL)
	}
}

// S10: a lazy-join chain rooted at person_distinct_ids itself (rather than
// at events, reaching person_distinct_ids as an intermediate hop) must
// materialize under its own anchor alias, not collide with or reuse the
// events-rooted "events__pdi__person" namespace.
func TestPrintMaterializationIsKeyedByFromAliasNotTargetTable(t *testing.T) {
	cat := catalog.NewMemoryCatalog(nil)
	q := compile(t,
		"select pdi.person.properties.email from person_distinct_ids pdi",
		nil, cat, schema.Options{}, 7)

	out, diags := Print(q, Config{TenantID: 7})
	if diags.HasErrors() {
		t.Fatalf("print errors: %v", diags.Errors())
	}

	if !strings.Contains(out.BackendSQL, "pdi__person") {
		t.Fatalf("expected the materialized alias to be anchored at pdi, got:\n%s", out.BackendSQL)
	}
	if strings.Contains(out.BackendSQL, "events__pdi") {
		t.Fatalf("expected no events-rooted materialization namespace since events is not in the FROM clause, got:\n%s", out.BackendSQL)
	}
}
