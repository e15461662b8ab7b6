//go:build unit

package memstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/usecase/shared"
	"auditorium-reservation/tests/common/builder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = builder.BaseTime

func approve(r *reservation.Reservation) error { return r.Approve(now) }

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := builder.NewReservationBuilder().BuildDomain()

	err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		require.NoError(t, tx.Reservations().Create(ctx, res))

		got, err := tx.Reservations().Get(ctx, res.ID())
		require.NoError(t, err)
		assert.Equal(t, res.ID(), got.ID())

		_, err = s.Reads().Get(ctx, res.ID())
		assert.True(t, infra.IsKind(err, infra.KindNotFound), "uncommitted rows are invisible outside the tx")
		return nil
	})
	require.NoError(t, err)

	got, err := s.Reads().Get(ctx, res.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPending, got.Status())
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := builder.NewReservationBuilder().BuildDomain()
	boom := errors.New("boom")

	err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		require.NoError(t, tx.Reservations().Create(ctx, res))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Reads().Get(ctx, res.ID())
	assert.True(t, infra.IsKind(err, infra.KindNotFound))
}

func TestStore_ConditionalTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("applies mutation when status matches", func(t *testing.T) {
		s := New()
		res := builder.NewReservationBuilder().BuildDomain()
		s.Seed(res)

		err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			got, err := tx.Reservations().ConditionalTransition(ctx, res.ID(), reservation.StatusPending, approve)
			require.NoError(t, err)
			assert.Equal(t, reservation.StatusApproved, got.Status())
			return nil
		})
		require.NoError(t, err)

		got, _ := s.Reads().Get(ctx, res.ID())
		assert.Equal(t, reservation.StatusApproved, got.Status())
	})

	t.Run("stale when status differs", func(t *testing.T) {
		s := New()
		res := builder.NewReservationBuilder().WithStatus(reservation.StatusApproved).BuildDomain()
		s.Seed(res)

		err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Reservations().ConditionalTransition(ctx, res.ID(), reservation.StatusPending, approve)
			return err
		})
		assert.True(t, infra.IsKind(err, infra.KindStaleState))
	})

	t.Run("mutation error aborts the write", func(t *testing.T) {
		s := New()
		res := builder.NewReservationBuilder().BuildDomain()
		s.Seed(res)
		boom := errors.New("rejected by guard")

		err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Reservations().ConditionalTransition(ctx, res.ID(), reservation.StatusPending, func(r *reservation.Reservation) error {
				_ = r.Approve(now)
				return boom
			})
			return err
		})
		assert.ErrorIs(t, err, boom)

		got, _ := s.Reads().Get(ctx, res.ID())
		assert.Equal(t, reservation.StatusPending, got.Status())
	})

	t.Run("not found", func(t *testing.T) {
		s := New()
		err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Reservations().ConditionalTransition(ctx, uuid.New(), reservation.StatusPending, approve)
			return err
		})
		assert.True(t, infra.IsKind(err, infra.KindNotFound))
	})
}

func TestStore_CommitDetectsConcurrentChange(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := builder.NewReservationBuilder().BuildDomain()
	s.Seed(res)

	// the outer tx reads pending, then a second tx withdraws before the outer commits
	err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		_, err := tx.Reservations().ConditionalTransition(ctx, res.ID(), reservation.StatusPending, approve)
		require.NoError(t, err)

		inner := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			return tx.Reservations().ConditionalDelete(ctx, res.ID(), reservation.StatusPending)
		})
		require.NoError(t, inner)
		return nil
	})
	assert.True(t, infra.IsKind(err, infra.KindNotFound))
}

func TestStore_ApprovedExclusion(t *testing.T) {
	ctx := context.Background()
	s := New()
	resourceID := uuid.New()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	approved := builder.NewReservationBuilder().WithResource(resourceID).
		WithWindow(start, start.Add(time.Hour)).WithStatus(reservation.StatusApproved).BuildDomain()
	overlapping := builder.NewReservationBuilder().WithResource(resourceID).
		WithWindow(start.Add(30*time.Minute), start.Add(90*time.Minute)).BuildDomain()
	touching := builder.NewReservationBuilder().WithResource(resourceID).
		WithWindow(start.Add(time.Hour), start.Add(2*time.Hour)).BuildDomain()
	s.Seed(approved, overlapping, touching)

	err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		_, err := tx.Reservations().ConditionalTransition(ctx, overlapping.ID(), reservation.StatusPending, approve)
		return err
	})
	assert.True(t, infra.IsKind(err, infra.KindConflict))

	err = s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		_, err := tx.Reservations().ConditionalTransition(ctx, touching.ID(), reservation.StatusPending, approve)
		return err
	})
	assert.NoError(t, err)
}

func TestStore_MarkReminded(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := builder.NewReservationBuilder().BuildDomain()
	s.Seed(res)

	mark := func() error {
		return s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			return tx.Reservations().MarkReminded(ctx, res.ID(), now)
		})
	}

	require.NoError(t, mark())
	assert.True(t, infra.IsKind(mark(), infra.KindStaleState), "the flag flips only once")

	got, _ := s.Reads().Get(ctx, res.ID())
	assert.True(t, got.ReminderSent())
}

func TestStore_ListQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	resourceID := uuid.New()
	ownerID := uuid.New()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	later := builder.NewReservationBuilder().WithResource(resourceID).WithOwner(ownerID).
		WithWindow(start.Add(2*time.Hour), start.Add(3*time.Hour)).WithStatus(reservation.StatusApproved).BuildDomain()
	earlier := builder.NewReservationBuilder().WithResource(resourceID).WithOwner(ownerID).
		WithWindow(start, start.Add(time.Hour)).BuildDomain()
	reminded := builder.NewReservationBuilder().WithWindow(start, start.Add(time.Hour)).WithReminderSent(true).BuildDomain()
	rejected := builder.NewReservationBuilder().WithStatus(reservation.StatusRejected).BuildDomain()
	s.Seed(later, earlier, reminded, rejected)

	byOwner, err := s.Reads().ListByOwner(ctx, ownerID, nil, 0)
	require.NoError(t, err)
	require.Len(t, byOwner, 2)
	assert.Equal(t, earlier.ID(), byOwner[0].ID())

	pendingRows, err := s.Reads().ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pendingRows, 2)

	blockingRows, err := s.Reads().ListBlocking(ctx, resourceID, reservation.MustWindow(start, start.Add(4*time.Hour)))
	require.NoError(t, err)
	require.Len(t, blockingRows, 1)
	assert.Equal(t, later.ID(), blockingRows[0].ID())

	candidates, err := s.Reads().ListReminderCandidates(ctx, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, earlier.ID(), candidates[0].ID())
}

func TestStore_ListByOwnerKeyset(t *testing.T) {
	ctx := context.Background()
	s := New()
	ownerID := uuid.New()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	// two rows share a start so the id breaks the tie
	var rows []*reservation.Reservation
	for _, offset := range []time.Duration{0, 0, time.Hour} {
		rows = append(rows, builder.NewReservationBuilder().WithOwner(ownerID).
			WithWindow(start.Add(offset), start.Add(offset+30*time.Minute)).BuildDomain())
	}
	id0, id1 := rows[0].ID(), rows[1].ID()
	if bytes.Compare(id0[:], id1[:]) > 0 {
		rows[0], rows[1] = rows[1], rows[0]
	}
	s.Seed(rows[2], rows[1], rows[0])

	first, err := s.Reads().ListByOwner(ctx, ownerID, nil, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, rows[0].ID(), first[0].ID())

	rest, err := s.Reads().ListByOwner(ctx, ownerID, &shared.Keyset{Start: start, ID: rows[0].ID()}, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, rows[1].ID(), rest[0].ID())
	assert.Equal(t, rows[2].ID(), rest[1].ID())

	none, err := s.Reads().ListByOwner(ctx, ownerID, &shared.Keyset{Start: rows[2].Window().Start(), ID: rows[2].ID()}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_LockResourceHonoursContext(t *testing.T) {
	s := New()
	resourceID := uuid.New()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = s.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
			_ = tx.LockResource(ctx, resourceID)
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.LockResource(ctx, resourceID)
	})
	assert.True(t, infra.IsKind(err, infra.KindDBFailure))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done

	err = s.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		return tx.LockResource(ctx, resourceID)
	})
	assert.NoError(t, err)
}
