package reservation

import "github.com/google/uuid"

// FindOverlapping returns the blocking reservations in candidates whose windows overlap w.
// excludeID (may be uuid.Nil) is skipped so a reservation never conflicts with itself.
func FindOverlapping(candidates []*Reservation, w Window, excludeID uuid.UUID) []*Reservation {
	var out []*Reservation
	for _, c := range candidates {
		if c.id == excludeID || !c.status.IsBlocking() {
			continue
		}
		if c.window.Overlaps(w) {
			out = append(out, c)
		}
	}
	return out
}
