// Command connprobe keeps live sessions to a set of targets through a
// connection cache and reports, round after round, whether each target can
// still be borrowed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "connprobe: %v\n", err)
		os.Exit(1)
	}
}
