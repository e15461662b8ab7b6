package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"auditorium-reservation/internal/domain/policy"
	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/pkg/clock"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/pkg/metrics"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const sweepLeaseKey = "reminder-sweep"

// SweepResult counts one sweep. An item whose dispatch or store update failed counts in Failed;
// a sent reminder counts in Notified even if recording it failed afterwards.
type SweepResult struct {
	Processed int
	Notified  int
	Failed    int
	// Skipped is set when another worker held the sweep lease
	Skipped bool
}

type ReminderConfig struct {
	Interval    time.Duration
	HorizonDays int
	Concurrency int
	LeaseTTL    time.Duration
	// Location defines the civil day that bounds the horizon
	Location *time.Location
}

type ReminderScheduler struct {
	uow      shared.UnitOfWork
	notifier shared.Notifier
	locker   shared.SweepLocker
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
	cfg      ReminderConfig

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReminderScheduler(
	uow shared.UnitOfWork,
	notifier shared.Notifier,
	locker shared.SweepLocker,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *slog.Logger,
	cfg ReminderConfig,
) *ReminderScheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReminderScheduler{
		uow:      uow,
		notifier: notifier,
		locker:   locker,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.logger.Info("reminder scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("horizon_days", s.cfg.HorizonDays))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop waits for the running sweep, if any, to finish. Start must have been called.
func (s *ReminderScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *ReminderScheduler) tick(ctx context.Context) {
	result, err := s.RunReminderSweep(ctx, s.clock.Now(), s.cfg.HorizonDays)
	if err != nil {
		s.logger.Error("reminder sweep failed", slog.String("error", err.Error()))
		return
	}
	if result.Skipped {
		s.logger.Debug("reminder sweep skipped, lease held elsewhere")
		return
	}
	if result.Processed > 0 {
		s.logger.Info("reminder sweep finished",
			slog.Int("processed", result.Processed),
			slog.Int("notified", result.Notified),
			slog.Int("failed", result.Failed))
	}
}

// RunReminderSweep reminds approvers about pending reservations starting between now
// and the end of the civil day horizonDays ahead. Each reservation is handled independently.
func (s *ReminderScheduler) RunReminderSweep(ctx context.Context, now time.Time, horizonDays int) (SweepResult, error) {
	lease, err := s.locker.TryAcquire(ctx, sweepLeaseKey, s.cfg.LeaseTTL)
	if err != nil {
		if errs.Is(err, shared.ErrLeaseHeld) {
			return SweepResult{Skipped: true}, nil
		}
		return SweepResult{}, errs.Wrap(err, "failed to acquire sweep lease")
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("failed to release sweep lease", slog.String("error", rerr.Error()))
		}
	}()

	began := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ReminderSweepDuration.Observe(time.Since(began).Seconds())
		}
	}()

	until := policy.EndOfCivilDay(now.In(s.cfg.Location).AddDate(0, 0, horizonDays), s.cfg.Location)

	candidates, err := s.uow.Reads().ListReminderCandidates(ctx, now, until)
	if err != nil {
		return SweepResult{}, errs.Wrap(err, "failed to list reminder candidates")
	}

	var processed, notified, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, res := range candidates {
		g.Go(func() error {
			sent, ok := s.remind(ctx, res, now)
			processed.Add(1)
			if sent {
				notified.Add(1)
			}
			if !ok {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{
		Processed: int(processed.Load()),
		Notified:  int(notified.Load()),
		Failed:    int(failed.Load()),
	}
	s.metrics.ObserveSweepItem("processed", result.Processed)
	s.metrics.ObserveSweepItem("notified", result.Notified)
	s.metrics.ObserveSweepItem("failed", result.Failed)
	return result, nil
}

// remind dispatches, then flips reminderSent regardless of the dispatch outcome:
// a missed reminder is preferred over a duplicate one.
func (s *ReminderScheduler) remind(ctx context.Context, res *reservation.Reservation, now time.Time) (sent bool, ok bool) {
	log := s.logger.With(
		slog.String("reservation_id", res.ID().String()),
		slog.String("resource_id", res.ResourceID().String()))

	notifyErr := s.notifier.Notify(ctx, shared.NewNotification(shared.EventReminder, res, uuid.Nil, now))
	if notifyErr != nil {
		log.Warn("reminder dispatch failed, marking as reminded anyway", slog.String("error", notifyErr.Error()))
	}
	sent = notifyErr == nil

	markErr := s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Reservations().MarkReminded(ctx, res.ID(), now)
	})
	switch {
	case markErr == nil:
		return sent, sent
	case sent && infra.IsKind(markErr, infra.KindStaleState) && s.alreadyReminded(ctx, res):
		// another sweep reminded it first; this send was a duplicate
		log.Error("reminder sent twice",
			slog.Bool("critical", true),
			slog.String("error", markErr.Error()))
		s.metrics.ObserveSweepItem("inconsistent", 1)
	case infra.IsKind(markErr, infra.KindStaleState), infra.IsKind(markErr, infra.KindNotFound):
		// approved or withdrawn since the scan
		log.Warn("reservation changed during reminder sweep", slog.String("error", markErr.Error()))
	case sent:
		log.Error("reminder sent but not recorded, it may be sent again",
			slog.Bool("critical", true),
			slog.String("error", markErr.Error()))
		s.metrics.ObserveSweepItem("inconsistent", 1)
	default:
		log.Error("failed to mark reservation as reminded", slog.String("error", markErr.Error()))
	}
	return sent, false
}

// alreadyReminded re-reads the reservation after a stale MarkReminded.
// An unreadable row counts as reminded: a duplicate cannot be ruled out.
func (s *ReminderScheduler) alreadyReminded(ctx context.Context, res *reservation.Reservation) bool {
	current, err := s.uow.Reads().Get(ctx, res.ID())
	if err != nil {
		return !infra.IsKind(err, infra.KindNotFound)
	}
	return current.ReminderSent()
}
