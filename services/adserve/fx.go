package adserve

import "go.uber.org/fx"

var Module = fx.Module("adserve.service",
	fx.Provide(NewService),
)
