package components

import (
	"auditorium-reservation/internal/domain/policy"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/usecase/commands"
	"auditorium-reservation/internal/usecase/conflict"
	"auditorium-reservation/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseQueriesModule,
	usecaseCommandsModule,
)

var usecaseBaseOption = fx.Provide(
	NewPolicy,
	conflict.NewDetector,
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewReservationUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewReservationQueries,
	),
)

func NewPolicy(cfg config.Config) (policy.Policy, error) {
	return policy.New(
		cfg.Policy.OpeningHour,
		cfg.Policy.MinLeadTime,
		policy.Span{Months: cfg.Policy.MaxAdvanceMonths, Days: cfg.Policy.MaxAdvanceDays},
		cfg.Policy.TimeZone,
	)
}
