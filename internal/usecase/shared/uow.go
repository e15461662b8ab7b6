package shared

import (
	"context"
	"time"

	"auditorium-reservation/internal/domain/reservation"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reads: Single query operations outside a transaction
	Reads() ReservationReader
}

type Tx interface {
	// LockResource serializes every state change for resourceID until the transaction ends.
	// Detector checks and the following write must happen after this call.
	LockResource(ctx context.Context, resourceID uuid.UUID) error
	Reservations() ReservationRepository
}

type ReservationReader interface {
	Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error)
	// ListBlocking returns approved reservations of resourceID overlapping window.
	ListBlocking(ctx context.Context, resourceID uuid.UUID, window reservation.Window) ([]*reservation.Reservation, error)
	// ListByOwner returns at most limit reservations ordered by (start, id), strictly after the keyset when one is given.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, after *Keyset, limit int) ([]*reservation.Reservation, error)
	ListPending(ctx context.Context) ([]*reservation.Reservation, error)
	// ListReminderCandidates returns pending, not yet reminded reservations starting within [from, until].
	ListReminderCandidates(ctx context.Context, from, until time.Time) ([]*reservation.Reservation, error)
}

// Keyset is the (window start, id) position of the last row already returned.
type Keyset struct {
	Start time.Time
	ID    uuid.UUID
}

// Mutation is applied to the freshly loaded reservation inside ConditionalTransition.
// Returning an error aborts the write.
type Mutation func(r *reservation.Reservation) error

type ReservationRepository interface {
	ReservationReader
	Create(ctx context.Context, res *reservation.Reservation) error
	// ConditionalTransition applies mutate only if the stored status equals expected,
	// failing with a KindStaleState repository error otherwise.
	ConditionalTransition(ctx context.Context, id uuid.UUID, expected reservation.Status, mutate Mutation) (*reservation.Reservation, error)
	// ConditionalDelete removes the record only if the stored status equals expected.
	ConditionalDelete(ctx context.Context, id uuid.UUID, expected reservation.Status) error
	// MarkReminded flips reminderSent false->true for a pending reservation; stale otherwise.
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}
