package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newRootCommand(newGlobalState())
	if err := c.cmd.ExecuteContext(ctx); err != nil {
		c.gs.logger.Error(err)
		stop()
		os.Exit(1)
	}
}
