package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/config"
	"github.com/ratepulse/ratepulse/internal/migration"
	"github.com/ratepulse/ratepulse/internal/observability"
	"github.com/ratepulse/ratepulse/internal/policy"
	"github.com/ratepulse/ratepulse/internal/server"
	"github.com/ratepulse/ratepulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		policy.Module,
		migration.Module,
		server.Module,
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
