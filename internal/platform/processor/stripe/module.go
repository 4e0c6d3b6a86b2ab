package stripe

import (
	"go.uber.org/fx"

	"github.com/fatflowers/paysync/internal/platform/processor"
)

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) processor.Client { return c }),
)
