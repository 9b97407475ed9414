// CLAUDE:SUMMARY CLI entry point for pairwatch: discovery loop, processing loop, read-only service, or all three.
// Command pairwatch watches a list page for new identifiers, extracts risk
// metrics from each identifier's detail page and serves the results.
//
// Usage:
//
//	pairwatch discover --config pairwatch.yaml   # list page -> identifier log
//	pairwatch process  --config pairwatch.yaml   # identifier log -> records
//	pairwatch serve    --config pairwatch.yaml   # read-only HTTP + MCP
//	pairwatch run      --config pairwatch.yaml   # all three in one process
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
