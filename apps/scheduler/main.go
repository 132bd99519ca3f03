package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/ratepulse/ratepulse/internal/clock"
	"github.com/ratepulse/ratepulse/internal/collector"
	"github.com/ratepulse/ratepulse/internal/competitor"
	"github.com/ratepulse/ratepulse/internal/config"
	"github.com/ratepulse/ratepulse/internal/migration"
	"github.com/ratepulse/ratepulse/internal/observability"
	"github.com/ratepulse/ratepulse/internal/policy"
	"github.com/ratepulse/ratepulse/internal/provider"
	"github.com/ratepulse/ratepulse/internal/quota"
	"github.com/ratepulse/ratepulse/internal/ratelimit"
	"github.com/ratepulse/ratepulse/internal/scheduler"
	"github.com/ratepulse/ratepulse/pkg/db"
	"go.uber.org/fx"
)

// Standalone refresh worker. Runs the due-item loop on an interval
// without the HTTP surface, for deployments where external cron
// triggers are not available.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		policy.Module,
		migration.Module,

		provider.Module,
		ratelimit.Module,
		competitor.Module,
		quota.Module,
		collector.Module,
		scheduler.Module,

		fx.Invoke(StartScheduler),
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

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
