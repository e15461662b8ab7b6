package components

import (
	"auditorium-reservation/internal/handler"
	"auditorium-reservation/internal/handler/api"
	"auditorium-reservation/internal/handler/middleware"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/pkg/jwt"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		fx.Annotate(
			NewJWTService,
			fx.As(new(middleware.TokenValidator)),
		),
		api.NewReservationHandler,
		middleware.NewAuthMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)

func NewJWTService(cfg config.Config) *jwt.Service {
	return jwt.NewService(cfg.JWT.Secret)
}
