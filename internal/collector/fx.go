package collector

import (
	"github.com/ratepulse/ratepulse/internal/collector/repository"
	"github.com/ratepulse/ratepulse/internal/collector/service"
	"go.uber.org/fx"
)

var Module = fx.Module("collector.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
