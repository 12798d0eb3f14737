package website

import "go.uber.org/fx"

var Module = fx.Module("website.service",
	fx.Provide(NewService),
)
