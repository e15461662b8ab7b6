package api

import (
	"net/http"
	"strconv"
	"time"

	reqdto "auditorium-reservation/internal/handler/dto/request"
	resdto "auditorium-reservation/internal/handler/dto/response"
	"auditorium-reservation/internal/handler/httperr"
	"auditorium-reservation/internal/handler/middleware"
	"auditorium-reservation/internal/pkg/errs"
	"auditorium-reservation/internal/usecase/commands"
	"auditorium-reservation/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var errUnauthenticated = errs.New("caller identity missing from context")

type ReservationHandler struct {
	cmds commands.ReservationCommands
	q    queries.ReservationQueries
}

func NewReservationHandler(cmds commands.ReservationCommands, q queries.ReservationQueries) *ReservationHandler {
	return &ReservationHandler{cmds: cmds, q: q}
}

// @Summary Request reservation
// @Description Submit a pending reservation request. Overlapping approved reservations are returned as warnings.
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.CreateReservationRequest true "Reservation request"
// @Success 201 {object} resdto.CreateReservationResponse
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errUnauthenticated, "Unauthorized", nil)
		return
	}
	var req reqdto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	result, err := h.cmds.RequestReservation(c.Request.Context(), req.ToInput(userID))
	if err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.Header("Location", "/api/reservations/"+result.ReservationID.String())
	c.JSON(http.StatusCreated, resdto.FromRequestResult(result))
}

// @Summary Get reservation
// @Description Owners see their own reservations; approvers see any.
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 400 {object} httperr.Response
// @Failure 403 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}
	viewer, ok := viewerFrom(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errUnauthenticated, "Unauthorized", nil)
		return
	}
	view, err := h.q.GetByID(c.Request.Context(), viewer, id)
	if err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromReservationView(view))
}

// @Summary List own reservations
// @Description List the caller's reservations ordered by start time with keyset pagination
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max items (default 20)"
// @Param after query string false "Cursor for keyset pagination"
// @Success 200 {object} resdto.ReservationListResponse
// @Failure 400 {object} httperr.Response
// @Router /reservations [get]
func (h *ReservationHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errUnauthenticated, "Unauthorized", nil)
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if iv, e := strconv.Atoi(v); e == nil {
			limit = iv
		}
	}
	var cursor *queries.Cursor
	if after := c.Query("after"); after != "" {
		cursor = &queries.Cursor{After: after}
	}
	items, next, err := h.q.ListByOwner(c.Request.Context(), userID, cursor, queries.ValidateLimit(limit))
	if err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromReservationPage(items, next))
}

// @Summary List pending reservations
// @Description Approver work queue, ordered by start time
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} resdto.ReservationResponse
// @Failure 403 {object} httperr.Response
// @Router /reservations/pending [get]
func (h *ReservationHandler) ListPending(c *gin.Context) {
	items, err := h.q.ListPending(c.Request.Context())
	if err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromReservationViews(items))
}

// @Summary Approve reservation
// @Description Approve a pending reservation. Fails with 409 when an approved reservation overlaps.
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /reservations/{id}/approve [post]
func (h *ReservationHandler) Approve(c *gin.Context) {
	id, approverID, ok := h.pathAndActor(c)
	if !ok {
		return
	}
	if err := h.cmds.Approve(c.Request.Context(), id, approverID); err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	h.respondWithView(c, id)
}

// @Summary Reject reservation
// @Description Reject a pending reservation with a reason
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Param request body reqdto.RejectReservationRequest true "Rejection reason"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /reservations/{id}/reject [post]
func (h *ReservationHandler) Reject(c *gin.Context) {
	id, approverID, ok := h.pathAndActor(c)
	if !ok {
		return
	}
	var req reqdto.RejectReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	if err := h.cmds.Reject(c.Request.Context(), id, approverID, req.GetReason()); err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	h.respondWithView(c, id)
}

// @Summary Reschedule reservation
// @Description Move a pending or approved reservation to a new window; it returns to pending
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Param request body reqdto.RescheduleReservationRequest true "New window"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 400 {object} httperr.Response
// @Failure 403 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /reservations/{id}/window [put]
func (h *ReservationHandler) Reschedule(c *gin.Context) {
	id, ownerID, ok := h.pathAndActor(c)
	if !ok {
		return
	}
	var req reqdto.RescheduleReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	if err := h.cmds.Reschedule(c.Request.Context(), id, ownerID, req.StartTime, req.EndTime); err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	h.respondWithView(c, id)
}

// @Summary Withdraw reservation
// @Description Owner removes a pending reservation, or an approved one outside the lead-time guard
// @Tags reservations
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 204 "No Content"
// @Failure 403 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Failure 422 {object} httperr.Response
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Withdraw(c *gin.Context) {
	id, ownerID, ok := h.pathAndActor(c)
	if !ok {
		return
	}
	if err := h.cmds.Withdraw(c.Request.Context(), id, ownerID); err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Check availability
// @Description Report approved reservations overlapping a candidate window. Informational only.
// @Tags resources
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param excludeId query string false "Reservation to ignore, e.g. the one being rescheduled"
// @Success 200 {object} resdto.AvailabilityResponse
// @Failure 400 {object} httperr.Response
// @Router /resources/{id}/availability [get]
func (h *ReservationHandler) Availability(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid resource id", nil)
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid start", nil)
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid end", nil)
		return
	}
	excludeID := uuid.Nil
	if v := c.Query("excludeId"); v != "" {
		if excludeID, err = uuid.Parse(v); err != nil {
			httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid excludeId", nil)
			return
		}
	}
	availability, err := h.q.CheckAvailability(c.Request.Context(), resourceID, start, end, excludeID)
	if err != nil {
		httperr.AbortWithDomainError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromAvailability(availability))
}

func (h *ReservationHandler) pathAndActor(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	actorID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errUnauthenticated, "Unauthorized", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return id, actorID, true
}

// respondWithView reloads after a command; a withdrawn reservation would 404 so commands that delete skip this.
func (h *ReservationHandler) respondWithView(c *gin.Context, id uuid.UUID) {
	viewer, _ := viewerFrom(c)
	view, err := h.q.GetByID(c.Request.Context(), viewer, id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to load reservation", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromReservationView(view))
}

func viewerFrom(c *gin.Context) (queries.Viewer, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return queries.Viewer{}, false
	}
	role, _ := middleware.GetUserRole(c)
	return queries.Viewer{UserID: userID, CanApprove: role.CanApprove()}, true
}
