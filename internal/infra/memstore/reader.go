package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

// committedReader serves reads outside a transaction from the committed rows.
type committedReader struct {
	s *Store
}

func (r committedReader) snapshot() []*reservation.Reservation {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*reservation.Reservation, 0, len(r.s.rows))
	for _, row := range r.s.rows {
		out = append(out, row)
	}
	return out
}

func (r committedReader) Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	row, ok := r.s.rows[id]
	if !ok {
		return nil, infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	return row.Clone(), nil
}

func (r committedReader) ListBlocking(ctx context.Context, resourceID uuid.UUID, window reservation.Window) ([]*reservation.Reservation, error) {
	return filter(r.snapshot(), blocking(resourceID, window)), nil
}

func (r committedReader) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *shared.Keyset, limit int) ([]*reservation.Reservation, error) {
	return page(filter(r.snapshot(), ownedBy(ownerID)), after, limit), nil
}

func (r committedReader) ListPending(ctx context.Context) ([]*reservation.Reservation, error) {
	return filter(r.snapshot(), pending), nil
}

func (r committedReader) ListReminderCandidates(ctx context.Context, from, until time.Time) ([]*reservation.Reservation, error) {
	return filter(r.snapshot(), needsReminder(from, until)), nil
}

type predicate func(r *reservation.Reservation) bool

func blocking(resourceID uuid.UUID, window reservation.Window) predicate {
	return func(r *reservation.Reservation) bool {
		return r.ResourceID() == resourceID && r.Status().IsBlocking() && r.Window().Overlaps(window)
	}
}

func ownedBy(ownerID uuid.UUID) predicate {
	return func(r *reservation.Reservation) bool { return r.OwnerID() == ownerID }
}

func pending(r *reservation.Reservation) bool {
	return r.Status() == reservation.StatusPending
}

func needsReminder(from, until time.Time) predicate {
	return func(r *reservation.Reservation) bool { return r.NeedsReminder(from, until) }
}

// filter returns clones ordered by window start, then id.
func filter(rows []*reservation.Reservation, keep predicate) []*reservation.Reservation {
	out := make([]*reservation.Reservation, 0)
	for _, r := range rows {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Window().Start(), out[j].Window().Start()
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		idi, idj := out[i].ID(), out[j].ID()
		return bytes.Compare(idi[:], idj[:]) < 0
	})
	return out
}

// page cuts sorted rows to those strictly after the keyset, at most limit of them.
// Starts compare at microsecond precision, matching PostgreSQL.
func page(rows []*reservation.Reservation, after *shared.Keyset, limit int) []*reservation.Reservation {
	if after != nil {
		i := 0
		for ; i < len(rows); i++ {
			start := rows[i].Window().Start().Truncate(time.Microsecond)
			id := rows[i].ID()
			if start.After(after.Start) || (start.Equal(after.Start) && bytes.Compare(id[:], after.ID[:]) > 0) {
				break
			}
		}
		rows = rows[i:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
