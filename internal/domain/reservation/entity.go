package reservation

import (
	"errors"
	"time"

	"auditorium-reservation/internal/pkg/errs"

	"github.com/google/uuid"
)

var (
	ErrInvalidStatus          = errors.New("invalid reservation status")
	ErrEmptyRejectionReason   = errs.Mark(errors.New("rejection reason is required"), errs.ErrValidation)
	ErrRejectionReasonTooLong = errs.Mark(errors.New("rejection reason is too long"), errs.ErrValidation)
	ErrWindowUnchanged        = errs.Mark(errors.New("new window equals the current window"), errs.ErrValidation)

	ErrNotPending       = errs.Mark(errors.New("reservation is not pending"), errs.ErrInvalidState)
	ErrNotReschedulable = errs.Mark(errors.New("only pending or approved reservations can be rescheduled"), errs.ErrInvalidState)
	ErrNotWithdrawable  = errs.Mark(errors.New("rejected reservations are kept for audit"), errs.ErrInvalidState)
	ErrWithdrawTooLate  = errs.Mark(errors.New("approved reservation is inside the lead-time guard"), errs.ErrTooLate)
	ErrNotOwner         = errs.Mark(errors.New("reservation belongs to another user"), errs.ErrForbidden)
)

type Reservation struct {
	id              uuid.UUID
	resourceID      uuid.UUID
	ownerID         uuid.UUID
	window          Window
	status          Status
	rejectionReason RejectionReason
	reminderSent    bool
	createdAt       time.Time
	updatedAt       time.Time
}

// NewReservation creates a pending request. The window must already have passed policy validation.
func NewReservation(resourceID, ownerID uuid.UUID, window Window, now time.Time) *Reservation {
	return &Reservation{
		id:         uuid.New(),
		resourceID: resourceID,
		ownerID:    ownerID,
		window:     window,
		status:     StatusPending,
		createdAt:  now,
		updatedAt:  now,
	}
}

func ReconstructReservation(
	id, resourceID, ownerID uuid.UUID,
	window Window,
	status Status,
	rejectionReason string,
	reminderSent bool,
	createdAt, updatedAt time.Time,
) *Reservation {
	return &Reservation{
		id:              id,
		resourceID:      resourceID,
		ownerID:         ownerID,
		window:          window,
		status:          status,
		rejectionReason: RejectionReason{value: rejectionReason},
		reminderSent:    reminderSent,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (r *Reservation) Approve(now time.Time) error {
	if r.status != StatusPending {
		return ErrNotPending
	}
	r.status = StatusApproved
	r.rejectionReason = RejectionReason{}
	r.updatedAt = now
	return nil
}

func (r *Reservation) Reject(reason RejectionReason, now time.Time) error {
	if r.status != StatusPending {
		return ErrNotPending
	}
	if reason.IsEmpty() {
		return ErrEmptyRejectionReason
	}
	r.status = StatusRejected
	r.rejectionReason = reason
	r.updatedAt = now
	return nil
}

// Reschedule replaces the window and sends the reservation back for approval.
// The previous window is returned for the lifecycle event only.
// CheckReschedulable reports whether the window may be replaced in the current status.
func (r *Reservation) CheckReschedulable() error {
	if r.status != StatusPending && r.status != StatusApproved {
		return ErrNotReschedulable
	}
	return nil
}

func (r *Reservation) Reschedule(window Window, now time.Time) (Window, error) {
	if err := r.CheckReschedulable(); err != nil {
		return Window{}, err
	}
	if r.window.Equal(window) {
		return Window{}, ErrWindowUnchanged
	}
	previous := r.window
	r.window = window
	r.status = StatusPending
	r.rejectionReason = RejectionReason{}
	r.updatedAt = now
	return previous, nil
}

// CheckWithdraw reports whether the owner may remove the reservation at now.
func (r *Reservation) CheckWithdraw(now time.Time, minLeadTime time.Duration) error {
	switch r.status {
	case StatusPending:
		return nil
	case StatusApproved:
		if now.Before(r.window.Start().Add(-minLeadTime)) {
			return nil
		}
		return ErrWithdrawTooLate
	default:
		return ErrNotWithdrawable
	}
}

func (r *Reservation) CheckOwner(ownerID uuid.UUID) error {
	if r.ownerID != ownerID {
		return ErrNotOwner
	}
	return nil
}

func (r *Reservation) MarkReminded(now time.Time) {
	r.reminderSent = true
	r.updatedAt = now
}

// NeedsReminder reports whether a sweep covering [from, until] should nudge an approver.
func (r *Reservation) NeedsReminder(from, until time.Time) bool {
	if r.status != StatusPending || r.reminderSent {
		return false
	}
	start := r.window.Start()
	return !start.Before(from) && !start.After(until)
}

func (r *Reservation) ID() uuid.UUID                    { return r.id }
func (r *Reservation) ResourceID() uuid.UUID            { return r.resourceID }
func (r *Reservation) OwnerID() uuid.UUID               { return r.ownerID }
func (r *Reservation) Window() Window                   { return r.window }
func (r *Reservation) Status() Status                   { return r.status }
func (r *Reservation) RejectionReason() RejectionReason { return r.rejectionReason }
func (r *Reservation) ReminderSent() bool               { return r.reminderSent }
func (r *Reservation) CreatedAt() time.Time             { return r.createdAt }
func (r *Reservation) UpdatedAt() time.Time             { return r.updatedAt }

// Clone returns an independent copy; stores hand out clones so callers never alias stored state.
func (r *Reservation) Clone() *Reservation {
	c := *r
	return &c
}

// Snapshot is the immutable, exported view carried by events and notifications.
type Snapshot struct {
	ID              uuid.UUID `json:"id"`
	ResourceID      uuid.UUID `json:"resource_id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ReminderSent    bool      `json:"reminder_sent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *Reservation) Snapshot() Snapshot {
	return Snapshot{
		ID:              r.id,
		ResourceID:      r.resourceID,
		OwnerID:         r.ownerID,
		Start:           r.window.Start(),
		End:             r.window.End(),
		Status:          r.status,
		RejectionReason: r.rejectionReason.String(),
		ReminderSent:    r.reminderSent,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
	}
}
