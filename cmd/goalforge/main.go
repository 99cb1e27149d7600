package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/migration"
	"github.com/smallbiznis/goalforge/internal/observability"
	"github.com/smallbiznis/goalforge/internal/scheduler"
	"github.com/smallbiznis/goalforge/internal/server"
	"github.com/smallbiznis/goalforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
