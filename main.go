package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaos-io/rembg-cli/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}
