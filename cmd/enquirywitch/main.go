// Command enquirywitch serves and checks interactive enquiry stories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/enquirywitch/enquirywitch/cmd/enquirywitch/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(commands.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	err := commands.App().Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
