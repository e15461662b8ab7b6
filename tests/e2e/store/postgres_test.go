//go:build e2e

package store_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/infra/redislock"
	"auditorium-reservation/internal/infra/uow"
	"auditorium-reservation/internal/pkg/clock"
	"auditorium-reservation/internal/pkg/metrics"
	"auditorium-reservation/internal/usecase/shared"
	"auditorium-reservation/internal/worker"
	"auditorium-reservation/tests/common/builder"
	"auditorium-reservation/tests/e2e"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PostgresStoreSuite struct {
	e2e.SharedSuite
	uow shared.UnitOfWork
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.SharedSuite.SetupSuite()
	s.uow = uow.NewPostgresUoW(s.DB)
}

func TestPostgresStoreSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) create(res *reservation.Reservation) {
	err := s.uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		return tx.Reservations().Create(ctx, res)
	})
	s.Require().NoError(err)
}

func approveAt(now time.Time) shared.Mutation {
	return func(r *reservation.Reservation) error { return r.Approve(now) }
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	s.Run("Normal case: every field survives a write and read", func() {
		t := s.T()
		res := builder.NewReservationBuilder().
			WithStatus(reservation.StatusRejected).
			WithReminderSent(true).
			BuildDomain()
		s.create(res)

		got, err := s.uow.Reads().Get(context.Background(), res.ID())
		require.NoError(t, err)

		if diff := cmp.Diff(res.Snapshot(), got.Snapshot(), cmpopts.EquateApproxTime(time.Microsecond)); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	s.Run("Error case: missing id is NotFound", func() {
		_, err := s.uow.Reads().Get(context.Background(), uuid.New())
		require.True(s.T(), infra.IsKind(err, infra.KindNotFound), "got %v", err)
	})
}

func (s *PostgresStoreSuite) TestConditionalWrites() {
	ctx := context.Background()
	now := builder.BaseTime

	s.Run("Error case: transition with a stale expected status", func() {
		t := s.T()
		res := builder.NewReservationBuilder().BuildDomain()
		s.create(res)

		err := s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Reservations().ConditionalTransition(ctx, res.ID(), reservation.StatusApproved, approveAt(now))
			return err
		})
		require.True(t, infra.IsKind(err, infra.KindStaleState), "got %v", err)
	})

	s.Run("Error case: exclusion constraint rejects a second overlapping approval", func() {
		t := s.T()
		resourceID := uuid.New()
		start := builder.NewReservationBuilder().Start
		a := builder.NewReservationBuilder().WithResource(resourceID).WithWindow(start, start.Add(2*time.Hour)).BuildDomain()
		b := builder.NewReservationBuilder().WithResource(resourceID).WithWindow(start.Add(time.Hour), start.Add(3*time.Hour)).BuildDomain()
		s.create(a)
		s.create(b)

		for i, id := range []uuid.UUID{a.ID(), b.ID()} {
			// no LockResource: the constraint alone must hold the line
			err := s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
				_, err := tx.Reservations().ConditionalTransition(ctx, id, reservation.StatusPending, approveAt(now))
				return err
			})
			if i == 0 {
				require.NoError(t, err)
			} else {
				require.True(t, infra.IsKind(err, infra.KindConflict), "got %v", err)
			}
		}
	})

	s.Run("Normal case: MarkReminded flips once", func() {
		t := s.T()
		res := builder.NewReservationBuilder().BuildDomain()
		s.create(res)

		mark := func() error {
			return s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
				return tx.Reservations().MarkReminded(ctx, res.ID(), now)
			})
		}
		require.NoError(t, mark())
		require.True(t, infra.IsKind(mark(), infra.KindStaleState))
	})

	s.Run("Normal case: ConditionalDelete removes only the expected status", func() {
		t := s.T()
		res := builder.NewReservationBuilder().BuildDomain()
		s.create(res)

		del := func(expected reservation.Status) error {
			return s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
				return tx.Reservations().ConditionalDelete(ctx, res.ID(), expected)
			})
		}
		require.True(t, infra.IsKind(del(reservation.StatusApproved), infra.KindStaleState))
		require.NoError(t, del(reservation.StatusPending))
		require.True(t, infra.IsKind(del(reservation.StatusPending), infra.KindNotFound))
	})
}

func (s *PostgresStoreSuite) TestListQueries() {
	s.Run("Normal case: blocking scan is half-open and approved-only", func() {
		t := s.T()
		ctx := context.Background()
		resourceID := uuid.New()
		start := builder.NewReservationBuilder().Start

		approved := builder.NewReservationBuilder().WithResource(resourceID).WithWindow(start, start.Add(time.Hour)).WithStatus(reservation.StatusApproved).BuildDomain()
		touching := builder.NewReservationBuilder().WithResource(resourceID).WithWindow(start.Add(time.Hour), start.Add(2*time.Hour)).WithStatus(reservation.StatusApproved).BuildDomain()
		pending := builder.NewReservationBuilder().WithResource(resourceID).WithWindow(start, start.Add(time.Hour)).BuildDomain()
		for _, r := range []*reservation.Reservation{approved, touching, pending} {
			s.create(r)
		}

		got, err := s.uow.Reads().ListBlocking(ctx, resourceID, reservation.MustWindow(start.Add(30*time.Minute), start.Add(time.Hour)))
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, approved.ID(), got[0].ID())
	})

	s.Run("Normal case: owner listing pages by start then id", func() {
		t := s.T()
		ctx := context.Background()
		ownerID := uuid.New()
		start := builder.NewReservationBuilder().Start

		var rows []*reservation.Reservation
		for _, offset := range []time.Duration{0, 0, time.Hour} {
			rows = append(rows, builder.NewReservationBuilder().WithOwner(ownerID).
				WithWindow(start.Add(offset), start.Add(offset+30*time.Minute)).BuildDomain())
		}
		id0, id1 := rows[0].ID(), rows[1].ID()
		if bytes.Compare(id0[:], id1[:]) > 0 {
			rows[0], rows[1] = rows[1], rows[0]
		}
		for _, r := range rows {
			s.create(r)
		}

		first, err := s.uow.Reads().ListByOwner(ctx, ownerID, nil, 1)
		require.NoError(t, err)
		require.Len(t, first, 1)
		require.Equal(t, rows[0].ID(), first[0].ID())

		rest, err := s.uow.Reads().ListByOwner(ctx, ownerID, &shared.Keyset{Start: start, ID: rows[0].ID()}, 10)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		require.Equal(t, rows[1].ID(), rest[0].ID())
		require.Equal(t, rows[2].ID(), rest[1].ID())

		all, err := s.uow.Reads().ListByOwner(ctx, ownerID, nil, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
	})

	s.Run("Normal case: reminder candidates are pending, unreminded and inside the range", func() {
		t := s.T()
		ctx := context.Background()
		from := builder.BaseTime
		until := from.Add(48 * time.Hour)

		inside := builder.NewReservationBuilder().WithWindow(from.Add(time.Hour), from.Add(2*time.Hour)).BuildDomain()
		reminded := builder.NewReservationBuilder().WithWindow(from.Add(time.Hour), from.Add(2*time.Hour)).WithReminderSent(true).BuildDomain()
		later := builder.NewReservationBuilder().WithWindow(until.Add(time.Hour), until.Add(2*time.Hour)).BuildDomain()
		for _, r := range []*reservation.Reservation{inside, reminded, later} {
			s.create(r)
		}

		got, err := s.uow.Reads().ListReminderCandidates(ctx, from, until)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, inside.ID(), got[0].ID())
	})
}

type countingNotifier struct {
	mu   sync.Mutex
	sent []uuid.UUID
}

func (n *countingNotifier) Notify(_ context.Context, notification shared.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification.Reservation.ID)
	return nil
}

func (s *PostgresStoreSuite) TestReminderSweep() {
	s.Run("Normal case: second sweep sends nothing", func() {
		t := s.T()
		ctx := context.Background()
		now := builder.BaseTime.Add(9 * time.Hour)
		for i := range 3 {
			start := now.Add(time.Duration(i+1) * time.Hour)
			s.create(builder.NewReservationBuilder().WithWindow(start, start.Add(time.Hour)).BuildDomain())
		}

		notifier := &countingNotifier{}
		clk := clock.NewMockClock(now)
		scheduler := worker.NewReminderScheduler(s.uow, notifier, redislock.NewLocalLocker(clk), metrics.NewNop(), clk,
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			worker.ReminderConfig{Interval: time.Hour, HorizonDays: 2, Concurrency: 3, LeaseTTL: time.Minute, Location: time.UTC})

		first, err := scheduler.RunReminderSweep(ctx, now, 2)
		require.NoError(t, err)
		require.Equal(t, worker.SweepResult{Processed: 3, Notified: 3}, first)

		second, err := scheduler.RunReminderSweep(ctx, now, 2)
		require.NoError(t, err)
		require.Equal(t, worker.SweepResult{}, second)
		require.Len(t, notifier.sent, 3)
	})
}
