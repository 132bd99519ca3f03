package snapshot

import (
	"github.com/ratepulse/ratepulse/internal/snapshot/repository"
	"github.com/ratepulse/ratepulse/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
