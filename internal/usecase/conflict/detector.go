// Package conflict answers whether a window collides with approved reservations of the same resource.
package conflict

import (
	"context"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

// Detector is only authoritative when called with a reader bound to a transaction
// that holds the resource lock (see shared.Tx.LockResource).
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// FindConflicts returns the approved reservations of resourceID overlapping window.
// excludeID (uuid.Nil for none) lets a reservation compare against all the others.
func (d *Detector) FindConflicts(
	ctx context.Context,
	reader shared.ReservationReader,
	resourceID uuid.UUID,
	window reservation.Window,
	excludeID uuid.UUID,
) ([]*reservation.Reservation, error) {
	candidates, err := reader.ListBlocking(ctx, resourceID, window)
	if err != nil {
		return nil, errs.Wrap(err, "failed to list blocking reservations")
	}

	// the store may return a superset; overlap and status are decided here
	return reservation.FindOverlapping(candidates, window, excludeID), nil
}

func (d *Detector) HasConflict(
	ctx context.Context,
	reader shared.ReservationReader,
	resourceID uuid.UUID,
	window reservation.Window,
	excludeID uuid.UUID,
) (bool, error) {
	conflicts, err := d.FindConflicts(ctx, reader, resourceID, window, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
