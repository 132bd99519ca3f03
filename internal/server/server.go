package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ratepulse/ratepulse/internal/collector"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	"github.com/ratepulse/ratepulse/internal/competitor"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
	"github.com/ratepulse/ratepulse/internal/config"
	"github.com/ratepulse/ratepulse/internal/intraday"
	"github.com/ratepulse/ratepulse/internal/observability"
	obsmiddleware "github.com/ratepulse/ratepulse/internal/observability/logger"
	"github.com/ratepulse/ratepulse/internal/provider"
	"github.com/ratepulse/ratepulse/internal/quota"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	"github.com/ratepulse/ratepulse/internal/ratelimit"
	"github.com/ratepulse/ratepulse/internal/recommendation"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	"github.com/ratepulse/ratepulse/internal/retention"
	"github.com/ratepulse/ratepulse/internal/scheduler"
	"github.com/ratepulse/ratepulse/internal/snapshot"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	provider.Module,
	ratelimit.Module,
	competitor.Module,
	quota.Module,
	collector.Module,
	scheduler.Module,
	snapshot.Module,
	recommendation.Module,
	retention.Module,
	intraday.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine            *gin.Engine
	cfg               config.Config
	db                *gorm.DB
	log               *zap.Logger
	genID             *snowflake.Node
	competitorSvc     competitordomain.Service
	collectorSvc      collectordomain.Service
	quotaSvc          quotadomain.Service
	recommendationSvc recdomain.Service
	snapshotSvc       snapshotdomain.Service
	intradaySvc       intraday.Service
	scheduler         *scheduler.Scheduler
	purger            *retention.Purger
	limiter           *ratelimit.ScanLimiter
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	DB                *gorm.DB
	Log               *zap.Logger
	GenID             *snowflake.Node
	CompetitorSvc     competitordomain.Service
	CollectorSvc      collectordomain.Service
	QuotaSvc          quotadomain.Service
	RecommendationSvc recdomain.Service
	SnapshotSvc       snapshotdomain.Service
	IntradaySvc       intraday.Service
	Scheduler         *scheduler.Scheduler
	Purger            *retention.Purger
	Limiter           *ratelimit.ScanLimiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		db:                p.DB,
		log:               p.Log.Named("http.server"),
		genID:             p.GenID,
		competitorSvc:     p.CompetitorSvc,
		collectorSvc:      p.CollectorSvc,
		quotaSvc:          p.QuotaSvc,
		recommendationSvc: p.RecommendationSvc,
		snapshotSvc:       p.SnapshotSvc,
		intradaySvc:       p.IntradaySvc,
		scheduler:         p.Scheduler,
		purger:            p.Purger,
		limiter:           p.Limiter,
	}

	svc.registerCronRoutes()
	svc.registerTenantRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCronRoutes() {
	cron := s.engine.Group("/api/cron", s.CronAuthRequired())

	cron.POST("/rate-shopper", s.RunRateRefresh)
	cron.POST("/rate-shopper/snapshot", s.BuildSnapshots)
	cron.POST("/rate-shopper/snapshot/backfill", s.BackfillSnapshots)
	cron.POST("/rate-shopper/cleanup", s.RunCleanup)
}

func (s *Server) registerTenantRoutes() {
	api := s.engine.Group("/api/rate-shopper")

	api.GET("/competitors", s.ListCompetitors)
	api.POST("/competitors", s.AddCompetitor)
	api.DELETE("/competitors/:id", s.RemoveCompetitor)
	api.GET("/search", s.SearchHotels)

	api.POST("/scan", s.TriggerManualScan)
	api.GET("/intraday", s.GetIntradayView)
	api.GET("/usage", s.GetUsage)

	api.GET("/recommendations", s.ListRecommendations)
	api.POST("/recommendations/:id/accept", s.AcceptRecommendation)
	api.POST("/recommendations/:id/reject", s.RejectRecommendation)
}
