package commands

import (
	"context"
	"log/slog"

	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/pkg/errs"

	"github.com/google/uuid"
)

const (
	transitionRequest    = "request"
	transitionApprove    = "approve"
	transitionReject     = "reject"
	transitionReschedule = "reschedule"
	transitionWithdraw   = "withdraw"
)

// one retry after a lost conditional write, then the caller must re-read
const maxStaleAttempts = 2

func (uc *reservationUseCaseImpl) withStaleRetry(ctx context.Context, reservationID uuid.UUID, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxStaleAttempts; attempt++ {
		err = fn()
		if !isStale(err) {
			return translateStoreErr(err)
		}
		if ctx.Err() != nil {
			break
		}
		uc.logger.Warn("stale reservation state",
			slog.String("reservation_id", reservationID.String()),
			slog.Int("attempt", attempt))
	}
	return errs.Mark(errs.Wrap(err, "reservation changed concurrently"), errs.ErrInvalidState)
}

func isStale(err error) bool {
	return err != nil && (infra.IsKind(err, infra.KindStaleState) || errs.Is(err, errs.ErrStaleState))
}

// translateStoreErr maps repository kinds onto the error taxonomy; domain errors pass through.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case infra.IsKind(err, infra.KindNotFound):
		return errs.Mark(err, errs.ErrNotFound)
	case infra.IsKind(err, infra.KindConflict):
		return errs.Mark(err, errs.ErrConflict)
	case infra.IsKind(err, infra.KindStaleState):
		return errs.Mark(err, errs.ErrInvalidState)
	case infra.IsKind(err, infra.KindDBFailure), infra.IsKind(err, infra.KindDuplicateKey):
		return errs.Mark(err, errs.ErrDatabaseOperationFailed)
	default:
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.Is(err, errs.ErrValidation):
		return "validation"
	case errs.Is(err, errs.ErrConflict):
		return "conflict"
	case errs.Is(err, errs.ErrInvalidState):
		return "invalid_state"
	case errs.Is(err, errs.ErrTooLate):
		return "too_late"
	case errs.Is(err, errs.ErrNotFound):
		return "not_found"
	case errs.Is(err, errs.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

func (uc *reservationUseCaseImpl) observe(transition string, err error) {
	uc.metrics.ObserveTransition(transition, outcome(err))
}
