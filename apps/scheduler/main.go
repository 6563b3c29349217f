package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chatlink/internal/channel"
	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/logger"
	"github.com/smallbiznis/chatlink/internal/metrics"
	"github.com/smallbiznis/chatlink/internal/migration"
	"github.com/smallbiznis/chatlink/internal/ratelimit"
	"github.com/smallbiznis/chatlink/internal/scheduler"
	"github.com/smallbiznis/chatlink/internal/subscription"
	"github.com/smallbiznis/chatlink/internal/verification"
	"github.com/smallbiznis/chatlink/pkg/db"
	"go.uber.org/fx"
)

// Standalone reconciliation worker for deployments that split the HTTP API
// from the background jobs. Points at the same database and redis as the API.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		channel.Module,
		verification.Module,
		subscription.Module,
		ratelimit.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
