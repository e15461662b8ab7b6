package response

import (
	"time"

	"auditorium-reservation/internal/usecase/commands"
	"auditorium-reservation/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type ReservationResponse struct {
	ID              uuid.UUID `json:"id"`
	ResourceID      uuid.UUID `json:"resourceId"`
	OwnerID         uuid.UUID `json:"ownerId"`
	Start           time.Time `json:"startTime"`
	End             time.Time `json:"endTime"`
	Status          string    `json:"status"`
	RejectionReason *string   `json:"rejectionReason,omitempty"`
	ReminderSent    bool      `json:"reminderSent"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ReservationListResponse struct {
	Items      []*ReservationResponse `json:"items"`
	NextCursor *string                `json:"nextCursor,omitempty"`
}

type ConflictWarningResponse struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Start         time.Time `json:"startTime"`
	End           time.Time `json:"endTime"`
}

type CreateReservationResponse struct {
	ID       uuid.UUID                 `json:"id"`
	Warnings []ConflictWarningResponse `json:"warnings"`
}

type AvailabilityResponse struct {
	Available bool                   `json:"available"`
	Conflicts []*ReservationResponse `json:"conflicts"`
}

func FromReservationView(v *queries.ReservationView) *ReservationResponse {
	var resp ReservationResponse
	// field names match one to one; copier only fails on nil or mismatched kinds
	_ = copier.Copy(&resp, v)
	return &resp
}

func FromReservationViews(views []*queries.ReservationView) []*ReservationResponse {
	out := make([]*ReservationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, FromReservationView(v))
	}
	return out
}

func FromReservationPage(views []*queries.ReservationView, next *queries.Cursor) *ReservationListResponse {
	resp := &ReservationListResponse{Items: FromReservationViews(views)}
	if next != nil && next.After != "" {
		after := next.After
		resp.NextCursor = &after
	}
	return resp
}

func FromRequestResult(r *commands.RequestReservationResult) *CreateReservationResponse {
	resp := &CreateReservationResponse{
		ID:       r.ReservationID,
		Warnings: make([]ConflictWarningResponse, 0, len(r.Warnings)),
	}
	_ = copier.Copy(&resp.Warnings, r.Warnings)
	return resp
}

func FromAvailability(a *queries.Availability) *AvailabilityResponse {
	return &AvailabilityResponse{
		Available: a.Available,
		Conflicts: FromReservationViews(a.Conflicts),
	}
}
