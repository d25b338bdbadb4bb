// Package main provides the aqlc CLI.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "check":
		cmdCheck(args)
	case "build":
		cmdBuild(args)
	case "run":
		cmdRun(args)
	case "dev":
		cmdDev(args)
	case "version", "--version", "-v":
		fmt.Printf("aqlc version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`aqlc - AQL compiler

Usage: aqlc <command> [arguments]

Commands:
  check     Validate .aql files without compiling them to SQL
  build     Compile .aql files to backend SQL
  run       Start the compile server, or compile and execute one .aql file
  dev       Rebuild .aql files on change and push build status over a websocket
  version   Print version information
  help      Show this help message

Examples:
  aqlc check
  aqlc check query.aql
  aqlc build
  aqlc run
  aqlc dev`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
