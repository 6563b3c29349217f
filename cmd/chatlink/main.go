package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/logger"
	"github.com/smallbiznis/chatlink/internal/migration"
	"github.com/smallbiznis/chatlink/internal/scheduler"
	"github.com/smallbiznis/chatlink/internal/server"
	"github.com/smallbiznis/chatlink/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
