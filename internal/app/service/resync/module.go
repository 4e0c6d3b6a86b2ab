package resync

import (
	"context"

	"go.uber.org/fx"

	"github.com/fatflowers/paysync/pkg/config"
)

func registerWorker(lc fx.Lifecycle, cfg *config.Config, w *Worker) {
	if !cfg.Resync.Enabled || cfg.Resync.Interval <= 0 {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: w.Stop,
	})
}

var Module = fx.Options(
	fx.Provide(NewService, NewWorker),
	fx.Invoke(registerWorker),
)
