package intraday

import (
	"go.uber.org/fx"
)

var Module = fx.Module("intraday.service",
	fx.Provide(New),
)
