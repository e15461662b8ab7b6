package request

import (
	"strings"
	"time"

	"auditorium-reservation/internal/usecase/commands"

	"github.com/google/uuid"
)

type CreateReservationRequest struct {
	ResourceID uuid.UUID `json:"resourceId" binding:"required"`
	StartTime  time.Time `json:"startTime" binding:"required"`
	EndTime    time.Time `json:"endTime" binding:"required"`
}

func (r CreateReservationRequest) ToInput(ownerID uuid.UUID) commands.RequestReservationInput {
	return commands.RequestReservationInput{
		ResourceID: r.ResourceID,
		OwnerID:    ownerID,
		Start:      r.StartTime,
		End:        r.EndTime,
	}
}

type RejectReservationRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// GetReason trims surrounding whitespace; a blank reason is rejected by the engine.
func (r RejectReservationRequest) GetReason() string {
	return strings.TrimSpace(r.Reason)
}

type RescheduleReservationRequest struct {
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}
