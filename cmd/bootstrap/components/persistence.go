package components

import (
	"log/slog"

	"auditorium-reservation/internal/infra/memstore"
	"auditorium-reservation/internal/infra/uow"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

// PoolFactory connects on first call.
type PoolFactory func() (*pgxpool.Pool, error)

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		NewUnitOfWork,
	),
)

func NewUnitOfWork(cfg config.Config, connect PoolFactory, logger *slog.Logger) (shared.UnitOfWork, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory reservation store; data is lost on restart")
		return memstore.New(), nil
	}

	pool, err := connect()
	if err != nil {
		return nil, err
	}
	return uow.NewPostgresUoW(pool), nil
}
