package retention

import (
	"go.uber.org/fx"
)

var Module = fx.Module("retention.purger",
	fx.Provide(New),
)
