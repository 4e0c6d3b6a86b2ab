package subscription

import "go.uber.org/fx"

// Module exposes the subscription reconciler and query service via Fx.
var Module = fx.Options(
	fx.Provide(NewReconciler, NewService),
)
