// Command tabula asks questions about a CSV or JSON file from the
// terminal.
//
//	tabula ask --data sales.csv "which region sold the most?"
//	tabula repl --data sales.csv
//	tabula exec --data sales.csv 'print(df.describe())'
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
