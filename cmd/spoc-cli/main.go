package main

import (
	"context"
	"log/slog"
	"time"

	"spoccrawler/cmd/spoc-cli/commands"
	"spoccrawler/lib/serviceutil"
	"spoccrawler/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "spoc-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := tel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
