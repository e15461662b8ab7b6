package bootstrap

import (
	"context"
	"sync"

	"auditorium-reservation/cmd/bootstrap/components"
	"auditorium-reservation/internal/infra/db"
	"auditorium-reservation/internal/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var DBModule = fx.Module("db",
	fx.Provide(
		NewDB,
	),
)

// NewDB defers connecting until the postgres store asks for the pool, so STORE_DRIVER=memory
// starts without a database.
func NewDB(lc fx.Lifecycle, cfg config.Config) components.PoolFactory {
	var (
		once    sync.Once
		pool    *pgxpool.Pool
		cleanup func()
		err     error
	)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})

	return func() (*pgxpool.Pool, error) {
		once.Do(func() {
			pool, cleanup, err = db.Connect(cfg.DB)
		})
		return pool, err
	}
}
