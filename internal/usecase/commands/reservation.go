package commands

import (
	"context"
	"log/slog"
	"time"

	"auditorium-reservation/internal/domain/policy"
	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/pkg/clock"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/pkg/metrics"
	"auditorium-reservation/internal/usecase/conflict"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

var (
	ErrReservationConflict = errs.Mark(errs.New("window overlaps an approved reservation"), errs.ErrConflict)
	// errWindowMoved: the window changed between the detector pass and the conditional write
	errWindowMoved = errs.Mark(errs.New("reservation window changed concurrently"), errs.ErrStaleState)
)

const assetCleanupTimeout = 30 * time.Second

type RequestReservationInput struct {
	ResourceID uuid.UUID
	OwnerID    uuid.UUID
	Start      time.Time
	End        time.Time
}

// ConflictWarning describes an approved reservation overlapping a new request.
// Requests are still accepted; the approver resolves the conflict.
type ConflictWarning struct {
	ReservationID uuid.UUID
	Start         time.Time
	End           time.Time
}

type RequestReservationResult struct {
	ReservationID uuid.UUID
	Warnings      []ConflictWarning
}

type ReservationCommands interface {
	RequestReservation(ctx context.Context, in RequestReservationInput) (*RequestReservationResult, error)
	Approve(ctx context.Context, reservationID, approverID uuid.UUID) error
	Reject(ctx context.Context, reservationID, approverID uuid.UUID, reason string) error
	Reschedule(ctx context.Context, reservationID, ownerID uuid.UUID, start, end time.Time) error
	Withdraw(ctx context.Context, reservationID, ownerID uuid.UUID) error
}

type reservationUseCaseImpl struct {
	uow      shared.UnitOfWork
	detector *conflict.Detector
	policy   policy.Policy
	notifier shared.Notifier
	assets   shared.AssetStore
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

func NewReservationUseCase(
	uow shared.UnitOfWork,
	detector *conflict.Detector,
	pol policy.Policy,
	notifier shared.Notifier,
	assets shared.AssetStore,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *slog.Logger,
) ReservationCommands {
	return &reservationUseCaseImpl{
		uow:      uow,
		detector: detector,
		policy:   pol,
		notifier: notifier,
		assets:   assets,
		metrics:  m,
		clock:    clk,
		logger:   logger,
	}
}

func (uc *reservationUseCaseImpl) RequestReservation(ctx context.Context, in RequestReservationInput) (*RequestReservationResult, error) {
	now := uc.clock.Now()

	window, err := policy.Validate(in.Start, in.End, now, uc.policy)
	if err != nil {
		uc.observe(transitionRequest, err)
		return nil, err
	}

	res := reservation.NewReservation(in.ResourceID, in.OwnerID, window, now)

	var warnings []ConflictWarning
	err = uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		// same lock as approvals, so the warning list is never missing a concurrent approval
		if derr := tx.LockResource(ctx, in.ResourceID); derr != nil {
			return derr
		}
		conflicts, derr := uc.detector.FindConflicts(ctx, tx.Reservations(), in.ResourceID, window, uuid.Nil)
		if derr != nil {
			return derr
		}
		warnings = toWarnings(conflicts)
		return tx.Reservations().Create(ctx, res)
	})
	if err != nil {
		err = translateStoreErr(err)
		uc.observe(transitionRequest, err)
		return nil, err
	}

	uc.observe(transitionRequest, nil)
	uc.logger.Info("reservation requested",
		slog.String("reservation_id", res.ID().String()),
		slog.String("resource_id", res.ResourceID().String()),
		slog.Int("conflict_warnings", len(warnings)))

	uc.publish(ctx, event{kind: shared.EventRequested, res: res, actorID: in.OwnerID, at: now})

	return &RequestReservationResult{ReservationID: res.ID(), Warnings: warnings}, nil
}

func (uc *reservationUseCaseImpl) Approve(ctx context.Context, reservationID, approverID uuid.UUID) error {
	var approved *reservation.Reservation
	now := uc.clock.Now()

	err := uc.withStaleRetry(ctx, reservationID, func() error {
		return uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			current, derr := lockAndLoad(ctx, tx, reservationID)
			if derr != nil {
				return derr
			}
			if current.Status() != reservation.StatusPending {
				return reservation.ErrNotPending
			}

			// authoritative re-check under the resource lock
			hasConflict, derr := uc.detector.HasConflict(ctx, tx.Reservations(), current.ResourceID(), current.Window(), current.ID())
			if derr != nil {
				return derr
			}
			if hasConflict {
				return ErrReservationConflict
			}

			approved, derr = tx.Reservations().ConditionalTransition(ctx, reservationID, current.Status(),
				guardWindow(current.Window(), func(r *reservation.Reservation) error {
					return r.Approve(now)
				}))
			return derr
		})
	})
	uc.observe(transitionApprove, err)
	if err != nil {
		return err
	}

	uc.logger.Info("reservation approved",
		slog.String("reservation_id", reservationID.String()),
		slog.String("approver_id", approverID.String()))
	uc.publish(ctx, event{kind: shared.EventApproved, res: approved, actorID: approverID, at: now})
	return nil
}

func (uc *reservationUseCaseImpl) Reject(ctx context.Context, reservationID, approverID uuid.UUID, reason string) error {
	rejectionReason, err := reservation.NewRejectionReason(reason)
	if err != nil {
		uc.observe(transitionReject, err)
		return err
	}

	var rejected *reservation.Reservation
	now := uc.clock.Now()

	err = uc.withStaleRetry(ctx, reservationID, func() error {
		return uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			current, derr := lockAndLoad(ctx, tx, reservationID)
			if derr != nil {
				return derr
			}

			rejected, derr = tx.Reservations().ConditionalTransition(ctx, reservationID, current.Status(),
				func(r *reservation.Reservation) error {
					return r.Reject(rejectionReason, now)
				})
			return derr
		})
	})
	uc.observe(transitionReject, err)
	if err != nil {
		return err
	}

	uc.logger.Info("reservation rejected",
		slog.String("reservation_id", reservationID.String()),
		slog.String("approver_id", approverID.String()))
	uc.publish(ctx, event{kind: shared.EventRejected, res: rejected, actorID: approverID, at: now})
	return nil
}

func (uc *reservationUseCaseImpl) Reschedule(ctx context.Context, reservationID, ownerID uuid.UUID, start, end time.Time) error {
	now := uc.clock.Now()

	var (
		rescheduled *reservation.Reservation
		previous    reservation.Window
		window      reservation.Window
	)
	err := uc.withStaleRetry(ctx, reservationID, func() error {
		return uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			current, derr := lockAndLoad(ctx, tx, reservationID)
			if derr != nil {
				return derr
			}
			if derr = current.CheckOwner(ownerID); derr != nil {
				return derr
			}
			// state guards first so a rejected reservation reports InvalidState, never Validation or Conflict
			if derr = current.CheckReschedulable(); derr != nil {
				return derr
			}
			window, derr = policy.Validate(start, end, now, uc.policy)
			if derr != nil {
				return derr
			}
			if _, derr = current.Clone().Reschedule(window, now); derr != nil {
				return derr
			}

			hasConflict, derr := uc.detector.HasConflict(ctx, tx.Reservations(), current.ResourceID(), window, current.ID())
			if derr != nil {
				return derr
			}
			if hasConflict {
				return ErrReservationConflict
			}

			rescheduled, derr = tx.Reservations().ConditionalTransition(ctx, reservationID, current.Status(),
				guardWindow(current.Window(), func(r *reservation.Reservation) error {
					prev, rerr := r.Reschedule(window, now)
					previous = prev
					return rerr
				}))
			return derr
		})
	})
	uc.observe(transitionReschedule, err)
	if err != nil {
		return err
	}

	uc.logger.Info("reservation rescheduled",
		slog.String("reservation_id", reservationID.String()),
		slog.String("previous_window", previous.String()),
		slog.String("window", window.String()))
	uc.publish(ctx, event{kind: shared.EventRescheduled, res: rescheduled, previous: &previous, actorID: ownerID, at: now})
	return nil
}

func (uc *reservationUseCaseImpl) Withdraw(ctx context.Context, reservationID, ownerID uuid.UUID) error {
	var withdrawn *reservation.Reservation
	now := uc.clock.Now()

	err := uc.withStaleRetry(ctx, reservationID, func() error {
		return uc.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			current, derr := lockAndLoad(ctx, tx, reservationID)
			if derr != nil {
				return derr
			}
			if derr = current.CheckOwner(ownerID); derr != nil {
				return derr
			}
			if derr = current.CheckWithdraw(now, uc.policy.MinLeadTime); derr != nil {
				return derr
			}

			if derr = tx.Reservations().ConditionalDelete(ctx, reservationID, current.Status()); derr != nil {
				return derr
			}
			withdrawn = current
			return nil
		})
	})
	uc.observe(transitionWithdraw, err)
	if err != nil {
		return err
	}

	uc.logger.Info("reservation withdrawn",
		slog.String("reservation_id", reservationID.String()),
		slog.String("status", withdrawn.Status().String()))
	uc.publish(ctx, event{kind: shared.EventWithdrawn, res: withdrawn, actorID: ownerID, at: now})
	uc.cleanupAssets(ctx, reservationID)
	return nil
}

// cleanupAssets runs detached from the request; failures are logged only.
func (uc *reservationUseCaseImpl) cleanupAssets(ctx context.Context, reservationID uuid.UUID) {
	if uc.assets == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		cctx, cancel := context.WithTimeout(detached, assetCleanupTimeout)
		defer cancel()
		if err := uc.assets.RemoveReservationAssets(cctx, reservationID); err != nil {
			uc.logger.Warn("failed to remove reservation assets",
				slog.String("reservation_id", reservationID.String()),
				slog.String("error", err.Error()))
		}
	}()
}

// lockAndLoad serializes on the reservation's resource, then re-reads it under the lock.
func lockAndLoad(ctx context.Context, tx shared.Tx, reservationID uuid.UUID) (*reservation.Reservation, error) {
	res, err := tx.Reservations().Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := tx.LockResource(ctx, res.ResourceID()); err != nil {
		return nil, err
	}
	return tx.Reservations().Get(ctx, reservationID)
}

// guardWindow fails the mutation when the stored window is no longer the one the detector checked.
func guardWindow(checked reservation.Window, mutate shared.Mutation) shared.Mutation {
	return func(r *reservation.Reservation) error {
		if !r.Window().Equal(checked) {
			return errWindowMoved
		}
		return mutate(r)
	}
}

func toWarnings(conflicts []*reservation.Reservation) []ConflictWarning {
	if len(conflicts) == 0 {
		return nil
	}
	out := make([]ConflictWarning, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, ConflictWarning{
			ReservationID: c.ID(),
			Start:         c.Window().Start(),
			End:           c.Window().End(),
		})
	}
	return out
}
