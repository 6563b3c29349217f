package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/chatlink/internal/config"
	"go.uber.org/fx"
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		PeriodResetInterval:  time.Duration(cfg.Scheduler.PeriodResetIntervalMinutes) * time.Minute,
		NonceCleanupInterval: time.Duration(cfg.Scheduler.NonceCleanupIntervalMinutes) * time.Minute,
		JobTimeout:           time.Duration(cfg.Scheduler.JobTimeoutSeconds) * time.Second,
		LockTTL:              time.Duration(cfg.Scheduler.LockTTLSeconds) * time.Second,
		NonceCleanupAfter:    time.Duration(cfg.NonceCleanupAfterHours) * time.Hour,
	}.withDefaults()
}

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartScheduler),
)

func StartScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
