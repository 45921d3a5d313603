package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JeremyFirst/Ds-Bot-2.0/cmd/staffbot/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.WorkerCmd().ExecuteContext(ctx); err != nil {
		slog.Default().Error("worker", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}
