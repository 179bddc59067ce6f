// Command syncctl is the operator CLI of SyncGuard.
// It builds the sync service in-process against the configured MySQL and Redis and
// reports breaker, limiter and run health without going through the daemon.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
