package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aql-lang/aql/aql"
	"github.com/aql-lang/aql/internal/config"
	"github.com/aql-lang/aql/internal/schema"
)

func cmdCheck(args []string) {
	files := findAQLFiles(args)
	if len(files) == 0 {
		fatal("no .aql files found")
	}

	cfg, err := config.Load(".")
	if err != nil {
		fatal("failed to load aqlc.toml: %v", err)
	}

	exitCode := 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			fatal("failed to read %s: %v", file, err)
		}

		result := aql.Check(context.Background(), string(content), aql.Options{
			TenantID: cfg.Tenant.DefaultID,
			Schema:   schema.Options{PersonOnEventsOverride: cfg.Features.PersonOnEventsOverride},
		})
		if result.HasErrors {
			exitCode = 1
		}
		printDiagnostics(file, result.Diagnostics)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	fmt.Println("All checks passed.")
}

func findAQLFiles(args []string) []string {
	if len(args) > 0 {
		var files []string
		for _, arg := range args {
			if strings.HasSuffix(arg, ".aql") {
				files = append(files, arg)
			}
		}
		return files
	}

	var files []string
	entries, err := os.ReadDir(".")
	if err != nil {
		return files
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".aql") {
			files = append(files, entry.Name())
		}
	}
	return files
}

func printDiagnostics(file string, diags []aql.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "%s:%d:%d: %s: [%s] %s\n", filepath.Base(file), d.Line, d.Column, d.Severity, d.Code, d.Message)
	}
}
