package aql

import (
	"context"
	"strings"
	"testing"

	"github.com/aql-lang/aql/internal/ast"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/schema"
)

func TestCompilePlaceholderAndPropertyComparison(t *testing.T) {
	result := Compile(context.Background(),
		"select count(), event from events where properties.random_uuid = {u} group by event",
		Options{
			TenantID:     7,
			Placeholders: map[string]ast.Expr{"u": &ast.Constant{Value: "abc"}},
		})

	if result.HasErrors {
		t.Fatalf("unexpected diagnostics: %+v", result.Diagnostics)
	}

	want := `SELECT count(), events.event FROM events WHERE and(equals(events.team_id, 7), equals(replaceRegexpAll(JSONExtractRaw(events.properties, %(hogql_val_0)s), '^"|"$', ''), %(hogql_val_1)s)) GROUP BY events.event LIMIT 100`
	if result.BackendSQL != want {
		t.Fatalf("backend sql =\n%s\nwant\n%s", result.BackendSQL, want)
	}
}

func TestCompileDistinctFromPersons(t *testing.T) {
	result := Compile(context.Background(), "select distinct properties.sneaky_mail from persons", Options{TenantID: 7})
	if result.HasErrors {
		t.Fatalf("unexpected diagnostics: %+v", result.Diagnostics)
	}

	want := `SELECT DISTINCT replaceRegexpAll(JSONExtractRaw(person.properties, %(hogql_val_0)s), '^"|"$', '') FROM person WHERE equals(person.team_id, 7) LIMIT 100`
	if result.BackendSQL != want {
		t.Fatalf("backend sql =\n%s\nwant\n%s", result.BackendSQL, want)
	}
}

func TestCompilePersonOnEventsOverrideSkipsJoins(t *testing.T) {
	cat := catalog.NewMemoryCatalog(map[catalog.Key]catalog.PropertyType{
		{Owner: "person", Name: "sneaky_mail", TenantID: 1}: catalog.TypeDateTime,
	})
	result := Compile(context.Background(), "SELECT event, e.person.properties.sneaky_mail FROM events e", Options{
		TenantID: 1,
		Catalog:  cat,
		Schema:   schema.Options{PersonOnEventsOverride: true},
	})
	if result.HasErrors {
		t.Fatalf("unexpected diagnostics: %+v", result.Diagnostics)
	}
	if strings.Contains(result.BackendSQL, "JOIN") {
		t.Fatalf("expected no joins under PERSON_ON_EVENTS_OVERRIDE, got:\n%s", result.BackendSQL)
	}
	if !strings.Contains(result.BackendSQL, "e.person_properties") {
		t.Fatalf("expected a direct person_properties access, got:\n%s", result.BackendSQL)
	}
}

func TestCompileReportsResolverErrorsWithoutPrinting(t *testing.T) {
	result := Compile(context.Background(), "select nonexistent_column from events", Options{TenantID: 1})
	if !result.HasErrors {
		t.Fatal("expected an error for an unresolvable column")
	}
	if result.BackendSQL != "" {
		t.Fatalf("expected no SQL on error, got %q", result.BackendSQL)
	}
}

func TestCheckStopsBeforePrinting(t *testing.T) {
	result := Check(context.Background(), "select event from events", Options{TenantID: 1})
	if result.HasErrors {
		t.Fatalf("unexpected diagnostics: %+v", result.Diagnostics)
	}
	if result.BackendSQL != "" {
		t.Fatal("Check must never populate BackendSQL")
	}
}
