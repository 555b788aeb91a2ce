package checkout

import "go.uber.org/fx"

// Module exposes the checkout client as the Processor interface.
var Module = fx.Options(
	fx.Provide(func(c *Client) Processor { return c }),
	fx.Provide(NewClient),
)
