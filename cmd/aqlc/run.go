package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/aql-lang/aql/aql"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/config"
	"github.com/aql-lang/aql/internal/execute"
	"github.com/aql-lang/aql/internal/schema"
	"github.com/aql-lang/aql/internal/server"
)

// cmdRun with no arguments starts the compile server; with a file
// argument it builds that one query and executes it immediately,
// printing the result rows.
func cmdRun(args []string) {
	if len(args) == 0 {
		runServer()
		return
	}
	file := args[0]

	content, err := os.ReadFile(file)
	if err != nil {
		fatal("failed to read %s: %v", file, err)
	}

	cfg, err := config.Load(".")
	if err != nil {
		fatal("failed to load aqlc.toml: %v", err)
	}
	cfg.ResolveSecrets()

	ctx := context.Background()

	var cat catalog.Catalog = catalog.NewMemoryCatalog(nil)
	if cfg.Catalog.URL != "" {
		pg, err := catalog.Connect(ctx, cfg.Catalog.URL)
		if err != nil {
			fatal("failed to connect to catalog: %v", err)
		}
		defer pg.Close()
		cat = pg
	}

	result := aql.Compile(ctx, string(content), aql.Options{
		TenantID:     cfg.Tenant.DefaultID,
		Catalog:      cat,
		Schema:       schema.Options{PersonOnEventsOverride: cfg.Features.PersonOnEventsOverride},
		DefaultLimit: cfg.Limits.DefaultLimit,
	})
	printDiagnostics(file, result.Diagnostics)
	if result.HasErrors {
		os.Exit(1)
	}

	executor, err := execute.NewClickHouseExecutor(execute.ClickHouseConfig{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		fatal("failed to connect to clickhouse: %v", err)
	}
	defer executor.Close()

	rows, err := executor.Execute(ctx, result.BackendSQL, result.BoundValues)
	if err != nil {
		fatal("failed to execute query: %v", err)
	}

	encoded, _ := json.MarshalIndent(rows.Rows, "", "  ")
	fmt.Println(string(encoded))
}

// runServer starts the compile-as-a-service HTTP surface, configured
// from aqlc.toml in the current directory.
func runServer() {
	cfg, err := config.Load(".")
	if err != nil {
		fatal("failed to load aqlc.toml: %v", err)
	}
	cfg.ResolveSecrets()

	ctx := context.Background()
	var cat catalog.Catalog = catalog.NewMemoryCatalog(nil)
	if cfg.Catalog.URL != "" {
		pg, err := catalog.Connect(ctx, cfg.Catalog.URL)
		if err != nil {
			fatal("failed to connect to catalog: %v", err)
		}
		defer pg.Close()
		cat = pg
	}

	jwtSecret := os.Getenv("AQLC_JWT_SECRET")
	srv := server.New(&server.Config{
		JWTSecret:    jwtSecret,
		DefaultLimit: cfg.Limits.DefaultLimit,
		Catalog:      cat,
	})

	addr := ":8090"
	fmt.Printf("aqlc compile server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		fatal("server exited: %v", err)
	}
}
