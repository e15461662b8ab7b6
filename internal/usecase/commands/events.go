package commands

import (
	"context"
	"log/slog"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

type event struct {
	kind     shared.EventKind
	res      *reservation.Reservation
	previous *reservation.Window
	actorID  uuid.UUID
	at       time.Time
}

// publish runs after commit. Dispatch failures are logged and never undo the transition.
func (uc *reservationUseCaseImpl) publish(ctx context.Context, e event) {
	if uc.notifier == nil || e.res == nil {
		return
	}

	n := shared.NewNotification(e.kind, e.res, e.actorID, e.at)
	if e.previous != nil {
		n.PreviousWindow = &shared.WindowSnapshot{Start: e.previous.Start(), End: e.previous.End()}
	}

	if err := uc.notifier.Notify(ctx, n); err != nil {
		uc.logger.Warn("failed to dispatch reservation event",
			slog.String("event", string(e.kind)),
			slog.String("reservation_id", e.res.ID().String()),
			slog.String("error", err.Error()))
	}
}
