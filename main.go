// atmbank - the ACME bank server and its ATM client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"atmbank/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "atmbank: %v\n", err)
		os.Exit(1)
	}
}
