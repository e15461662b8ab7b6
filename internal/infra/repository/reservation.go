package repository

import (
	"context"
	"errors"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/infra"
	"auditorium-reservation/internal/pkg/pgconv"
	"auditorium-reservation/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	pgErrCodeUniqueViolation    = "23505"
	pgErrCodeExclusionViolation = "23P01"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectReservation = `
SELECT id, resource_id, owner_id, slot, status, rejection_reason, reminder_sent, created_at, updated_at
FROM reservations`

const orderBySlot = ` ORDER BY lower(slot), id`

type ReservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

var _ shared.ReservationRepository = (*ReservationRepository)(nil)

func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO reservations (id, resource_id, owner_id, slot, status, rejection_reason, reminder_sent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.ID(),
		res.ResourceID(),
		res.OwnerID(),
		pgconv.HalfOpenRange(res.Window().Start(), res.Window().End()),
		res.Status().String(),
		rejectionReasonParam(res),
		res.ReminderSent(),
		res.CreatedAt(),
		res.UpdatedAt(),
	)
	if err != nil {
		return wrapPgErr("failed to create reservation", err)
	}
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, selectReservation+` WHERE id = $1`, id))
	if err != nil {
		return nil, wrapPgErr("failed to get reservation", err)
	}
	return res, nil
}

func (r *ReservationRepository) ConditionalTransition(
	ctx context.Context,
	id uuid.UUID,
	expected reservation.Status,
	mutate shared.Mutation,
) (*reservation.Reservation, error) {
	current, err := scanReservation(r.db.QueryRow(ctx, selectReservation+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapPgErr("failed to load reservation for update", err)
	}
	if current.Status() != expected {
		return nil, infra.WrapRepoErr("reservation status changed concurrently", nil, infra.KindStaleState)
	}

	if err := mutate(current); err != nil {
		return nil, err
	}

	tag, err := r.db.Exec(ctx, `
UPDATE reservations
SET slot = $3, status = $4, rejection_reason = $5, reminder_sent = $6, updated_at = $7
WHERE id = $1 AND status = $2`,
		id,
		expected.String(),
		pgconv.HalfOpenRange(current.Window().Start(), current.Window().End()),
		current.Status().String(),
		rejectionReasonParam(current),
		current.ReminderSent(),
		current.UpdatedAt(),
	)
	if err != nil {
		return nil, wrapPgErr("failed to update reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, infra.WrapRepoErr("reservation status changed concurrently", nil, infra.KindStaleState)
	}
	return current, nil
}

func (r *ReservationRepository) ConditionalDelete(ctx context.Context, id uuid.UUID, expected reservation.Status) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1 AND status = $2`, id, expected.String())
	if err != nil {
		return wrapPgErr("failed to delete reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, id)
	}
	return nil
}

func (r *ReservationRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
UPDATE reservations
SET reminder_sent = true, updated_at = $2
WHERE id = $1 AND status = 'pending' AND reminder_sent = false`, id, at)
	if err != nil {
		return wrapPgErr("failed to mark reservation as reminded", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, id)
	}
	return nil
}

// missOrStale explains a conditional write that matched no row.
func (r *ReservationRepository) missOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return wrapPgErr("failed to check reservation existence", err)
	}
	if !exists {
		return infra.WrapRepoErr("reservation not found", nil, infra.KindNotFound)
	}
	return infra.WrapRepoErr("reservation state changed concurrently", nil, infra.KindStaleState)
}

func (r *ReservationRepository) ListBlocking(ctx context.Context, resourceID uuid.UUID, window reservation.Window) ([]*reservation.Reservation, error) {
	return r.list(ctx, "failed to list blocking reservations",
		selectReservation+` WHERE resource_id = $1 AND status = $2 AND slot && $3`+orderBySlot,
		resourceID, reservation.BlockingStatus.String(), pgconv.HalfOpenRange(window.Start(), window.End()))
}

func (r *ReservationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *shared.Keyset, limit int) ([]*reservation.Reservation, error) {
	const msg = "failed to list reservations by owner"
	// LIMIT NULL means no limit
	var lim any
	if limit > 0 {
		lim = limit
	}
	if after == nil {
		return r.list(ctx, msg,
			selectReservation+` WHERE owner_id = $1`+orderBySlot+` LIMIT $2`, ownerID, lim)
	}
	return r.list(ctx, msg,
		selectReservation+` WHERE owner_id = $1 AND (lower(slot), id) > ($2, $3)`+orderBySlot+` LIMIT $4`,
		ownerID, after.Start, after.ID, lim)
}

func (r *ReservationRepository) ListPending(ctx context.Context) ([]*reservation.Reservation, error) {
	return r.list(ctx, "failed to list pending reservations",
		selectReservation+` WHERE status = 'pending'`+orderBySlot)
}

func (r *ReservationRepository) ListReminderCandidates(ctx context.Context, from, until time.Time) ([]*reservation.Reservation, error) {
	return r.list(ctx, "failed to list reminder candidates",
		selectReservation+`
WHERE status = 'pending' AND reminder_sent = false AND lower(slot) >= $1 AND lower(slot) <= $2`+orderBySlot,
		from, until)
}

func (r *ReservationRepository) list(ctx context.Context, msg, sql string, args ...any) ([]*reservation.Reservation, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapPgErr(msg, err)
	}
	defer rows.Close()

	out := make([]*reservation.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, wrapPgErr(msg, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgErr(msg, err)
	}
	return out, nil
}

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var (
		id, resourceID, ownerID uuid.UUID
		slot                    pgtype.Range[pgtype.Timestamptz]
		status                  string
		reason                  pgtype.Text
		reminderSent            bool
		createdAt, updatedAt    time.Time
	)
	if err := row.Scan(&id, &resourceID, &ownerID, &slot, &status, &reason, &reminderSent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	start, end, err := pgconv.RangeBounds(slot)
	if err != nil {
		return nil, err
	}
	window, err := reservation.NewWindow(start, end)
	if err != nil {
		return nil, err
	}
	st, err := reservation.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var rejectionReason string
	if p := pgconv.StringPtrFromPgtype(reason); p != nil {
		rejectionReason = *p
	}

	return reservation.ReconstructReservation(
		id, resourceID, ownerID, window, st, rejectionReason, reminderSent, createdAt.UTC(), updatedAt.UTC(),
	), nil
}

func rejectionReasonParam(res *reservation.Reservation) pgtype.Text {
	if res.RejectionReason().IsEmpty() {
		return pgtype.Text{}
	}
	s := res.RejectionReason().String()
	return pgconv.StringPtrToPgtype(&s)
}

func wrapPgErr(msg string, err error) error {
	if pgconv.IsNoRows(err) {
		return infra.WrapRepoErr(msg, err, infra.KindNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrCodeExclusionViolation:
			return infra.WrapRepoErr(msg, err, infra.KindConflict)
		case pgErrCodeUniqueViolation:
			return infra.WrapRepoErr(msg, err, infra.KindDuplicateKey)
		}
	}
	return infra.WrapRepoErr(msg, err)
}
