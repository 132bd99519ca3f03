package competitor

import (
	"github.com/ratepulse/ratepulse/internal/competitor/repository"
	"github.com/ratepulse/ratepulse/internal/competitor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("competitor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
