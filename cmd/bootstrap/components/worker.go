package components

import (
	"context"

	"auditorium-reservation/internal/domain/policy"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/worker"

	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		NewReminderConfig,
		worker.NewReminderScheduler,
	),
	fx.Invoke(registerReminderScheduler),
)

// The sweep horizon uses the booking policy's civil day.
func NewReminderConfig(cfg config.Config, pol policy.Policy) worker.ReminderConfig {
	return worker.ReminderConfig{
		Interval:    cfg.Reminder.Interval,
		HorizonDays: cfg.Reminder.HorizonDays,
		Concurrency: cfg.Reminder.Concurrency,
		LeaseTTL:    cfg.Reminder.LeaseTTL,
		Location:    pol.Location,
	}
}

func registerReminderScheduler(lc fx.Lifecycle, cfg config.Config, s *worker.ReminderScheduler) {
	if !cfg.Reminder.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go s.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			s.Stop()
			cancel()
			return nil
		},
	})
}
