//go:build unit || e2e

package builder

import (
	"time"

	"auditorium-reservation/internal/domain/reservation"
	reqdto "auditorium-reservation/internal/handler/dto/request"
	"auditorium-reservation/internal/usecase/queries"

	"github.com/google/uuid"
)

// BaseTime is a Monday morning far enough from DST changes to keep civil math predictable.
var BaseTime = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

type ReservationBuilder struct {
	ID              uuid.UUID
	ResourceID      uuid.UUID
	OwnerID         uuid.UUID
	Start           time.Time
	End             time.Time
	Status          reservation.Status
	RejectionReason string
	ReminderSent    bool
	CreatedAt       time.Time
}

func NewReservationBuilder() *ReservationBuilder {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return &ReservationBuilder{
		ID:         uuid.New(),
		ResourceID: uuid.New(),
		OwnerID:    uuid.New(),
		Start:      start,
		End:        start.Add(time.Hour),
		Status:     reservation.StatusPending,
		CreatedAt:  BaseTime,
	}
}

func (b *ReservationBuilder) With(mutate func(*ReservationBuilder)) *ReservationBuilder {
	mutate(b)
	return b
}

func (b *ReservationBuilder) WithResource(id uuid.UUID) *ReservationBuilder {
	b.ResourceID = id
	return b
}

func (b *ReservationBuilder) WithOwner(id uuid.UUID) *ReservationBuilder {
	b.OwnerID = id
	return b
}

func (b *ReservationBuilder) WithWindow(start, end time.Time) *ReservationBuilder {
	b.Start = start
	b.End = end
	return b
}

func (b *ReservationBuilder) WithStatus(status reservation.Status) *ReservationBuilder {
	b.Status = status
	if status == reservation.StatusRejected && b.RejectionReason == "" {
		b.RejectionReason = "auditorium under maintenance"
	}
	return b
}

func (b *ReservationBuilder) WithReminderSent(sent bool) *ReservationBuilder {
	b.ReminderSent = sent
	return b
}

// Build methods
func (b *ReservationBuilder) BuildDomain() *reservation.Reservation {
	return reservation.ReconstructReservation(
		b.ID,
		b.ResourceID,
		b.OwnerID,
		reservation.MustWindow(b.Start, b.End),
		b.Status,
		b.RejectionReason,
		b.ReminderSent,
		b.CreatedAt,
		b.CreatedAt,
	)
}

func (b *ReservationBuilder) BuildView() *queries.ReservationView {
	var reason *string
	if b.RejectionReason != "" {
		r := b.RejectionReason
		reason = &r
	}
	return &queries.ReservationView{
		ID:              b.ID,
		ResourceID:      b.ResourceID,
		OwnerID:         b.OwnerID,
		Start:           b.Start.UTC(),
		End:             b.End.UTC(),
		Status:          b.Status.String(),
		RejectionReason: reason,
		ReminderSent:    b.ReminderSent,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.CreatedAt,
	}
}

func (b *ReservationBuilder) BuildCreateRequestDTO() reqdto.CreateReservationRequest {
	return reqdto.CreateReservationRequest{
		ResourceID: b.ResourceID,
		StartTime:  b.Start,
		EndTime:    b.End,
	}
}

func (b *ReservationBuilder) BuildRescheduleRequestDTO() reqdto.RescheduleReservationRequest {
	return reqdto.RescheduleReservationRequest{
		StartTime: b.Start,
		EndTime:   b.End,
	}
}
