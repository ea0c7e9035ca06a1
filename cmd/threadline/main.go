// Command threadline is a terminal client for link-aggregator feeds.
//
// Usage:
//
//	threadline                      Browse the configured feeds
//	threadline --manual             Load more only when m is pressed
//	threadline config --init        Write the default config file
//	threadline prune                Forget scroll positions older than 30 days
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}
	return 0
}
