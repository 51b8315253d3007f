package main

import (
	"context"
	"log/slog"
	"os"

	"portalsync-backend/lib/serviceutil"
	"portalsync-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	err := telemetry.SetupFromEnv(ctx, "portal-server")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry.json5 found, running with logs only")
	} else if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	} else {
		telemetry.InstrumentPerfStats(ctx)
	}
	telemetry.InitSlog(verbose)
}
