// Package app implements the winnow command line interface.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "run", "process":
		return runProcess(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "decisions":
		return runDecisions(args[1:])
	case "articles":
		return runArticles(args[1:])
	case "stats":
		return runStats(args[1:])
	case "report":
		return runReport(args[1:])
	case "prune":
		return runPrune(args[1:])
	case "token":
		return runToken(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "winnow CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  winnow <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate   Validate channel batch JSON files against the schema")
	fmt.Fprintln(os.Stderr, "  run        Execute one dedup run over channel batch files")
	fmt.Fprintln(os.Stderr, "  process    Alias for run")
	fmt.Fprintln(os.Stderr, "  runs       List recent dedup runs")
	fmt.Fprintln(os.Stderr, "  decisions  List the decision log of a run")
	fmt.Fprintln(os.Stderr, "  articles   List recent stored articles")
	fmt.Fprintln(os.Stderr, "  stats      Show store totals and today's outcome counters")
	fmt.Fprintln(os.Stderr, "  report     Re-export report and kept-articles CSV for a past run")
	fmt.Fprintln(os.Stderr, "  prune      Soft-delete stored articles older than a cutoff")
	fmt.Fprintln(os.Stderr, "  token      Generate an API bearer token and its hash")
	fmt.Fprintln(os.Stderr, "  serve      Start the audit API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"winnow <command> -h\" for command-specific flags.")
}
