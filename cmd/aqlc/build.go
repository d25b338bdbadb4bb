package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aql-lang/aql/aql"
	"github.com/aql-lang/aql/internal/config"
	"github.com/aql-lang/aql/internal/schema"
)

// buildOutput is what `aqlc build` prints for a single compiled query.
type buildOutput struct {
	BackendSQL  string           `json:"backend_sql"`
	AQLSQL      string           `json:"aql_sql"`
	BoundValues map[string]any   `json:"bound_values"`
	Diagnostics []aql.Diagnostic `json:"diagnostics,omitempty"`
}

func cmdBuild(args []string) {
	if !doBuild(args, true) {
		os.Exit(1)
	}
}

// doBuild compiles every given .aql file and, when verbose, prints its
// backend SQL, AQL form and bound values as JSON. It returns false if any
// file fails to compile.
func doBuild(args []string, verbose bool) bool {
	files := findAQLFiles(args)
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "error: no .aql files found")
		return false
	}

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load aqlc.toml: %v\n", err)
		return false
	}

	ok := true
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to read %s: %v\n", file, err)
			ok = false
			continue
		}

		result := aql.Compile(context.Background(), string(content), aql.Options{
			TenantID:     cfg.Tenant.DefaultID,
			Schema:       schema.Options{PersonOnEventsOverride: cfg.Features.PersonOnEventsOverride},
			DefaultLimit: cfg.Limits.DefaultLimit,
		})
		printDiagnostics(file, result.Diagnostics)
		if result.HasErrors {
			ok = false
			continue
		}

		if verbose {
			out := buildOutput{
				BackendSQL:  result.BackendSQL,
				AQLSQL:      result.AQLSQL,
				BoundValues: result.BoundValues,
			}
			encoded, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(encoded))
		}
	}
	return ok
}
