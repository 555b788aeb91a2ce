package transaction

import "go.uber.org/fx"

// Module exposes the transaction recorder via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
