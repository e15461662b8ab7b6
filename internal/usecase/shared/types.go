package shared

import (
	"context"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/pkg/errs"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventRequested   EventKind = "reservation.requested"
	EventApproved    EventKind = "reservation.approved"
	EventRejected    EventKind = "reservation.rejected"
	EventRescheduled EventKind = "reservation.rescheduled"
	EventWithdrawn   EventKind = "reservation.withdrawn"
	EventReminder    EventKind = "reservation.reminder"
)

type RecipientKind string

const (
	RecipientOwner     RecipientKind = "owner"
	RecipientApprovers RecipientKind = "approvers"
)

type Recipient struct {
	Kind RecipientKind `json:"kind"`
	// UserID is set for RecipientOwner only
	UserID uuid.UUID `json:"user_id,omitempty"`
}

func OwnerRecipient(ownerID uuid.UUID) Recipient {
	return Recipient{Kind: RecipientOwner, UserID: ownerID}
}

func ApproverRecipients() Recipient {
	return Recipient{Kind: RecipientApprovers}
}

type WindowSnapshot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Notification struct {
	Recipient      Recipient            `json:"recipient"`
	Kind           EventKind            `json:"kind"`
	Reservation    reservation.Snapshot `json:"reservation"`
	PreviousWindow *WindowSnapshot      `json:"previous_window,omitempty"`
	ActorID        uuid.UUID            `json:"actor_id"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// Notifier delivers a notification to the outside world (mail relay, broker, log).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// AssetStore holds optional attachments (posters) per reservation.
type AssetStore interface {
	RemoveReservationAssets(ctx context.Context, reservationID uuid.UUID) error
}

// SweepLocker grants a time-bounded exclusive lease so overlapping sweeps never run at once.
type SweepLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// ErrLeaseHeld is returned by SweepLocker when another holder owns the lease.
var ErrLeaseHeld = errs.New("lease held by another worker")

// RecipientFor routes an event: approval decisions go to the owner, everything else to approvers.
func RecipientFor(kind EventKind, ownerID uuid.UUID) Recipient {
	switch kind {
	case EventApproved, EventRejected:
		return OwnerRecipient(ownerID)
	default:
		return ApproverRecipients()
	}
}

func NewNotification(kind EventKind, res *reservation.Reservation, actorID uuid.UUID, at time.Time) Notification {
	return Notification{
		Recipient:   RecipientFor(kind, res.OwnerID()),
		Kind:        kind,
		Reservation: res.Snapshot(),
		ActorID:     actorID,
		OccurredAt:  at,
	}
}
