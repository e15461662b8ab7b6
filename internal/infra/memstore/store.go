// Package memstore is an in-process reservation store for single-replica deployments and tests.
//
// Writes inside Within are staged and applied atomically on commit. Commit re-checks every
// conditional write against the committed state and enforces that approved windows of one
// resource never overlap, mirroring the PostgreSQL exclusion constraint.
package memstore

import (
	"context"
	"sync"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
)

type Store struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*reservation.Reservation

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

func New() *Store {
	return &Store{
		rows:  make(map[uuid.UUID]*reservation.Reservation),
		locks: make(map[uuid.UUID]chan struct{}),
	}
}

var _ shared.UnitOfWork = (*Store)(nil)

func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return infra.WrapRepoErr("transaction not started", err)
	}

	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) Reads() shared.ReservationReader {
	return committedReader{s: s}
}

// Seed inserts reservations as already committed rows, bypassing every check.
func (s *Store) Seed(rs ...*reservation.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rs {
		s.rows[r.ID()] = r.Clone()
	}
}

func (s *Store) resourceLock(resourceID uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[resourceID] = l
	}
	return l
}

func (s *Store) commit(t *memTx) error {
	if len(t.writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.order {
		w := t.writes[id]
		current := s.rows[id]

		if w.created {
			if current != nil {
				return infra.WrapRepoErr("reservation already exists", nil, infra.KindDuplicateKey)
			}
			continue
		}
		if current == nil {
			return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
		}
		if current.Status() != w.expected {
			return infra.WrapRepoErr("reservation status changed concurrently", nil, infra.KindStaleState)
		}
		if w.expectNotReminded && current.ReminderSent() {
			return infra.WrapRepoErr("reminder already marked", nil, infra.KindStaleState)
		}
	}

	if err := s.checkApprovedExclusion(t); err != nil {
		return err
	}

	for _, id := range t.order {
		w := t.writes[id]
		if w.deleted {
			delete(s.rows, id)
			continue
		}
		s.rows[id] = w.res.Clone()
	}
	return nil
}

// checkApprovedExclusion must be called with s.mu held.
func (s *Store) checkApprovedExclusion(t *memTx) error {
	for _, id := range t.order {
		w := t.writes[id]
		if w.deleted || !w.res.Status().IsBlocking() {
			continue
		}
		for otherID, other := range s.rows {
			if staged, ok := t.writes[otherID]; ok {
				if staged.deleted {
					continue
				}
				other = staged.res
			}
			if otherID == id || !other.Status().IsBlocking() || other.ResourceID() != w.res.ResourceID() {
				continue
			}
			if other.Window().Overlaps(w.res.Window()) {
				return infra.WrapRepoErr("approved windows overlap", nil, infra.KindConflict)
			}
		}
		for _, otherID := range t.order {
			other := t.writes[otherID]
			if otherID == id || other.deleted || !other.created || !other.res.Status().IsBlocking() {
				continue
			}
			if other.res.ResourceID() == w.res.ResourceID() && other.res.Window().Overlaps(w.res.Window()) {
				return infra.WrapRepoErr("approved windows overlap", nil, infra.KindConflict)
			}
		}
	}
	return nil
}

type write struct {
	res               *reservation.Reservation
	created           bool
	deleted           bool
	expected          reservation.Status
	expectNotReminded bool
}

type memTx struct {
	s      *Store
	held   []chan struct{}
	heldID map[uuid.UUID]bool
	writes map[uuid.UUID]*write
	order  []uuid.UUID
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:      s,
		heldID: make(map[uuid.UUID]bool),
		writes: make(map[uuid.UUID]*write),
	}
}

func (t *memTx) LockResource(ctx context.Context, resourceID uuid.UUID) error {
	if t.heldID[resourceID] {
		return nil
	}

	l := t.s.resourceLock(resourceID)
	select {
	case l <- struct{}{}:
		t.held = append(t.held, l)
		t.heldID[resourceID] = true
		return nil
	case <-ctx.Done():
		return infra.WrapRepoErr("waiting for resource lock", ctx.Err())
	}
}

func (t *memTx) releaseLocks() {
	for _, l := range t.held {
		<-l
	}
	t.held = nil
}

func (t *memTx) Reservations() shared.ReservationRepository {
	return t
}

func (t *memTx) stage(id uuid.UUID, w *write) {
	if prev, ok := t.writes[id]; ok {
		// keep the first precondition seen in this transaction
		w.created = prev.created
		w.expected = prev.expected
		w.expectNotReminded = prev.expectNotReminded || w.expectNotReminded
		if prev.created && w.deleted {
			delete(t.writes, id)
			t.order = removeID(t.order, id)
			return
		}
		t.writes[id] = w
		return
	}
	t.writes[id] = w
	t.order = append(t.order, id)
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// view returns the reservation as this transaction sees it, nil when absent.
func (t *memTx) view(id uuid.UUID) *reservation.Reservation {
	if w, ok := t.writes[id]; ok {
		if w.deleted {
			return nil
		}
		return w.res
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.rows[id]
}

func (t *memTx) all() []*reservation.Reservation {
	t.s.mu.RLock()
	out := make([]*reservation.Reservation, 0, len(t.s.rows)+len(t.writes))
	for id, r := range t.s.rows {
		if _, ok := t.writes[id]; ok {
			continue
		}
		out = append(out, r)
	}
	t.s.mu.RUnlock()

	for _, id := range t.order {
		if w := t.writes[id]; !w.deleted {
			out = append(out, w.res)
		}
	}
	return out
}

func (t *memTx) Create(ctx context.Context, res *reservation.Reservation) error {
	if t.view(res.ID()) != nil {
		return infra.WrapRepoErr("reservation already exists", nil, infra.KindDuplicateKey)
	}
	t.stage(res.ID(), &write{res: res.Clone(), created: true})
	return nil
}

func (t *memTx) Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	r := t.view(id)
	if r == nil {
		return nil, infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	return r.Clone(), nil
}

func (t *memTx) ConditionalTransition(ctx context.Context, id uuid.UUID, expected reservation.Status, mutate shared.Mutation) (*reservation.Reservation, error) {
	current := t.view(id)
	if current == nil {
		return nil, infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	if current.Status() != expected {
		return nil, infra.WrapRepoErr("reservation status changed concurrently", nil, infra.KindStaleState)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	t.stage(id, &write{res: next, expected: expected})
	return next.Clone(), nil
}

func (t *memTx) ConditionalDelete(ctx context.Context, id uuid.UUID, expected reservation.Status) error {
	current := t.view(id)
	if current == nil {
		return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	if current.Status() != expected {
		return infra.WrapRepoErr("reservation status changed concurrently", nil, infra.KindStaleState)
	}

	t.stage(id, &write{res: current, deleted: true, expected: expected})
	return nil
}

func (t *memTx) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	current := t.view(id)
	if current == nil {
		return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	if current.Status() != reservation.StatusPending || current.ReminderSent() {
		return infra.WrapRepoErr("reservation no longer awaits a reminder", nil, infra.KindStaleState)
	}

	next := current.Clone()
	next.MarkReminded(at)
	t.stage(id, &write{res: next, expected: reservation.StatusPending, expectNotReminded: true})
	return nil
}

func (t *memTx) ListBlocking(ctx context.Context, resourceID uuid.UUID, window reservation.Window) ([]*reservation.Reservation, error) {
	return filter(t.all(), blocking(resourceID, window)), nil
}

func (t *memTx) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *shared.Keyset, limit int) ([]*reservation.Reservation, error) {
	return page(filter(t.all(), ownedBy(ownerID)), after, limit), nil
}

func (t *memTx) ListPending(ctx context.Context) ([]*reservation.Reservation, error) {
	return filter(t.all(), pending), nil
}

func (t *memTx) ListReminderCandidates(ctx context.Context, from, until time.Time) ([]*reservation.Reservation, error) {
	return filter(t.all(), needsReminder(from, until)), nil
}
