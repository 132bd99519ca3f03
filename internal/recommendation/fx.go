package recommendation

import (
	"github.com/ratepulse/ratepulse/internal/recommendation/repository"
	"github.com/ratepulse/ratepulse/internal/recommendation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recommendation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
