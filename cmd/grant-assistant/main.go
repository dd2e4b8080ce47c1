// cmd/grant-assistant/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"grant-assistant/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli.RootCmd.SetContext(ctx)
	code := cli.Execute()
	stop()
	os.Exit(code)
}
