package quota

import (
	"github.com/ratepulse/ratepulse/internal/quota/repository"
	"github.com/ratepulse/ratepulse/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
