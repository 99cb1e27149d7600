package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/challenge"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/observability"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"github.com/smallbiznis/goalforge/internal/scheduler"
	"github.com/smallbiznis/goalforge/pkg/db"
	"go.uber.org/fx"
)

// Runs the challenge expiry sweep without the HTTP server. Deploy the main
// binary with SCHEDULER_ENABLED=false when this one is running.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		ratelimit.Module,
		challenge.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
