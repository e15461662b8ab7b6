package queries

import (
	"context"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/conflict"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

// Read models (DTO for read side)
type ReservationView struct {
	ID              uuid.UUID `json:"id"`
	ResourceID      uuid.UUID `json:"resource_id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          string    `json:"status"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
	ReminderSent    bool      `json:"reminder_sent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Availability struct {
	Available bool               `json:"available"`
	Conflicts []*ReservationView `json:"conflicts,omitempty"`
}

// Viewer is the caller of a read; approvers see every reservation, members only their own.
type Viewer struct {
	UserID     uuid.UUID
	CanApprove bool
}

type ReservationQueries interface {
	GetByID(ctx context.Context, viewer Viewer, id uuid.UUID) (*ReservationView, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, after *Cursor, limit int) ([]*ReservationView, *Cursor, error)
	ListPending(ctx context.Context) ([]*ReservationView, error)
	// CheckAvailability is informational; the authoritative check happens at approval.
	CheckAvailability(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (*Availability, error)
}

type reservationQueriesImpl struct {
	uow      shared.UnitOfWork
	detector *conflict.Detector
}

func NewReservationQueries(uow shared.UnitOfWork, detector *conflict.Detector) ReservationQueries {
	return &reservationQueriesImpl{uow: uow, detector: detector}
}

func (q *reservationQueriesImpl) GetByID(ctx context.Context, viewer Viewer, id uuid.UUID) (*ReservationView, error) {
	res, err := q.uow.Reads().Get(ctx, id)
	if err != nil {
		return nil, translateReadErr(err)
	}
	if !viewer.CanApprove {
		if err := res.CheckOwner(viewer.UserID); err != nil {
			return nil, err
		}
	}
	return ToView(res), nil
}

func (q *reservationQueriesImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *Cursor, limit int) ([]*ReservationView, *Cursor, error) {
	limit = ValidateLimit(limit)

	var keyset *shared.Keyset
	if after != nil && after.After != "" {
		afterStart, afterID, err := DecodeAfterCursor(after.After)
		if err != nil {
			return nil, nil, err
		}
		keyset = &shared.Keyset{Start: afterStart, ID: afterID}
	}

	// one extra row tells whether another page exists
	rows, err := q.uow.Reads().ListByOwner(ctx, ownerID, keyset, limit+1)
	if err != nil {
		return nil, nil, translateReadErr(err)
	}

	var next *Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &Cursor{After: EncodeAfterCursor(last.Window().Start(), last.ID())}
	}
	return ToViews(rows), next, nil
}

func (q *reservationQueriesImpl) ListPending(ctx context.Context) ([]*ReservationView, error) {
	rows, err := q.uow.Reads().ListPending(ctx)
	if err != nil {
		return nil, translateReadErr(err)
	}
	return ToViews(rows), nil
}

func (q *reservationQueriesImpl) CheckAvailability(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (*Availability, error) {
	window, err := reservation.NewWindow(start, end)
	if err != nil {
		return nil, err
	}

	conflicts, err := q.detector.FindConflicts(ctx, q.uow.Reads(), resourceID, window, excludeID)
	if err != nil {
		return nil, translateReadErr(err)
	}
	return &Availability{Available: len(conflicts) == 0, Conflicts: ToViews(conflicts)}, nil
}

func translateReadErr(err error) error {
	if infra.IsKind(err, infra.KindNotFound) {
		return errs.Mark(err, errs.ErrNotFound)
	}
	return errs.Mark(err, errs.ErrDatabaseOperationFailed)
}

func ToView(r *reservation.Reservation) *ReservationView {
	var reason *string
	if !r.RejectionReason().IsEmpty() {
		s := r.RejectionReason().String()
		reason = &s
	}
	return &ReservationView{
		ID:              r.ID(),
		ResourceID:      r.ResourceID(),
		OwnerID:         r.OwnerID(),
		Start:           r.Window().Start(),
		End:             r.Window().End(),
		Status:          r.Status().String(),
		RejectionReason: reason,
		ReminderSent:    r.ReminderSent(),
		CreatedAt:       r.CreatedAt(),
		UpdatedAt:       r.UpdatedAt(),
	}
}

func ToViews(rows []*reservation.Reservation) []*ReservationView {
	out := make([]*ReservationView, 0, len(rows))
	for _, r := range rows {
		out = append(out, ToView(r))
	}
	return out
}
