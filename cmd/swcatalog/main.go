package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"swcatalog/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.New().Execute(ctx, os.Args[1:]); err != nil {
		_, _ = os.Stderr.WriteString("swcatalog: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
