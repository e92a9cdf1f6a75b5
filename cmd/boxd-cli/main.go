package main

import (
	"context"

	"boxdbot-backend/cmd/boxd-cli/commands"
	"boxdbot-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.SetupFromEnv(ctx, "boxd-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(ctx)
}
