package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/fastdl/internal/cli"
)

func main() {
	// The first interrupt pauses transfers and saves their progress.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()

	os.Exit(code)
}
