package components

import (
	"context"
	"log/slog"

	"auditorium-reservation/internal/infra/assets"
	"auditorium-reservation/internal/infra/notify"
	"auditorium-reservation/internal/infra/redislock"
	"auditorium-reservation/internal/pkg/clock"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/pkg/metrics"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var InfraModule = fx.Module("infra",
	fx.Provide(
		clock.NewRealClock,
		metrics.New,
		NewNotifier,
		NewSweepLocker,
		fx.Annotate(
			NewAssetStore,
			fx.As(new(shared.AssetStore)),
		),
	),
)

func NewAssetStore(cfg config.Config) *assets.FileStore {
	return assets.NewFileStore(cfg.Assets.Dir)
}

// NewNotifier publishes to RabbitMQ when AMQP_URL is set and logs otherwise.
func NewNotifier(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (shared.Notifier, error) {
	if cfg.AMQP.URL == "" {
		logger.Info("AMQP_URL not set; notifications go to the log")
		return notify.NewLogNotifier(logger), nil
	}

	n, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return n.Close()
		},
	})
	return n, nil
}

// NewSweepLocker shares the sweep lease through Redis when REDIS_ADDR is set.
// Without it only one replica should run the scheduler.
func NewSweepLocker(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, logger *slog.Logger) (shared.SweepLocker, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("REDIS_ADDR not set; using in-process sweep lease")
		return redislock.NewLocalLocker(clk), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return redislock.NewLocker(client), nil
}
