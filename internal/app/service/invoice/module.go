package invoice

import "go.uber.org/fx"

// Module exposes the invoice aggregator via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
