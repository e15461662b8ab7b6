//go:build e2e

package reservation_test

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"auditorium-reservation/internal/domain/user"
	reqdto "auditorium-reservation/internal/handler/dto/request"
	resdto "auditorium-reservation/internal/handler/dto/response"
	"auditorium-reservation/tests/common/authtest"
	"auditorium-reservation/tests/common/dbtest"
	"auditorium-reservation/tests/common/httptest"
	"auditorium-reservation/tests/e2e"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	reservationsURL = "/api/reservations"
	reservationURL  = "/api/reservations/%s"
	approveURL      = "/api/reservations/%s/approve"
	rejectURL       = "/api/reservations/%s/reject"
	windowURL       = "/api/reservations/%s/window"
	pendingURL      = "/api/reservations/pending"
	availabilityURL = "/api/resources/%s/availability?start=%s&end=%s"
)

type ReservationSuite struct {
	e2e.SharedSuite
	jwt *authtest.JWTHelper
}

func (s *ReservationSuite) SetupSuite() {
	s.SharedSuite.SetupSuite()
	s.jwt = authtest.NewJWTHelper(s.Config.JWT)
}

func (s *ReservationSuite) SetupSubTest() {
	s.SharedSuite.SetupSubTest()
}

func TestReservationSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ReservationSuite))
}

// slot returns a window a week out at the given wall-clock hour in the policy zone.
func (s *ReservationSuite) slot(hour int, d time.Duration) (time.Time, time.Time) {
	loc, err := time.LoadLocation(s.Config.Policy.TimeZone)
	s.Require().NoError(err)
	day := time.Now().In(loc).AddDate(0, 0, 7)
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
	return start, start.Add(d)
}

func (s *ReservationSuite) request(caller authtest.Caller, resourceID uuid.UUID, start, end time.Time) resdto.CreateReservationResponse {
	t := s.T()
	w := httptest.PerformRequest(t, s.Router, http.MethodPost, reservationsURL,
		reqdto.CreateReservationRequest{ResourceID: resourceID, StartTime: start, EndTime: end}, caller.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created resdto.CreateReservationResponse
	require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &created))
	return created
}

// =============================================================================
// TestLifecycle - request, approve, reject and withdraw through the API
// =============================================================================

func (s *ReservationSuite) TestLifecycle() {
	s.Run("Normal case: request then approve", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		resourceID := uuid.New()
		start, end := s.slot(10, time.Hour)

		created := s.request(member, resourceID, start, end)
		require.Empty(t, created.Warnings)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, created.ID), nil, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got resdto.ReservationResponse
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &got))

		want := resdto.ReservationResponse{
			ID:         created.ID,
			ResourceID: resourceID,
			OwnerID:    member.ID,
			Start:      start.UTC(),
			End:        end.UTC(),
			Status:     "approved",
		}
		if diff := cmp.Diff(want, got,
			cmpopts.IgnoreFields(resdto.ReservationResponse{}, "CreatedAt", "UpdatedAt"),
			cmpopts.EquateApproxTime(time.Microsecond),
		); diff != "" {
			t.Errorf("approved reservation mismatch (-want +got):\n%s", diff)
		}
	})

	s.Run("Normal case: overlapping request gets a warning and cannot be approved", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		resourceID := uuid.New()
		start, end := s.slot(10, 2*time.Hour)

		first := s.request(member, resourceID, start, end)
		w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, first.ID), nil, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		second := s.request(member, resourceID, start.Add(time.Hour), end.Add(time.Hour))
		require.Len(t, second.Warnings, 1)
		require.Equal(t, first.ID, second.Warnings[0].ReservationID)

		w = httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, second.ID), nil, approver.Token)
		httptest.AssertErrorResponse(t, w, http.StatusConflict, "")
		require.Equal(t, "pending", dbtest.ReservationStatus(t, s.DB, second.ID))
	})

	s.Run("Normal case: touching windows are both approvable", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		resourceID := uuid.New()
		start, end := s.slot(10, time.Hour)

		a := s.request(member, resourceID, start, end)
		b := s.request(member, resourceID, end, end.Add(time.Hour))
		require.Empty(t, b.Warnings)

		for _, id := range []uuid.UUID{a.ID, b.ID} {
			w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, id), nil, approver.Token)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		}
	})

	s.Run("Normal case: reject keeps the reason; withdraw is then refused", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		start, end := s.slot(11, time.Hour)

		created := s.request(member, uuid.New(), start, end)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(rejectURL, created.ID),
			reqdto.RejectReservationRequest{Reason: "stage rigging"}, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got resdto.ReservationResponse
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &got))
		require.Equal(t, "rejected", got.Status)
		require.NotNil(t, got.RejectionReason)
		require.Equal(t, "stage rigging", *got.RejectionReason)

		w = httptest.PerformRequest(t, s.Router, http.MethodDelete, fmt.Sprintf(reservationURL, created.ID), nil, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusConflict, "")
	})

	s.Run("Normal case: reschedule an approved reservation returns it to pending", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		start, end := s.slot(13, time.Hour)

		created := s.request(member, uuid.New(), start, end)
		w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, created.ID), nil, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = httptest.PerformRequest(t, s.Router, http.MethodPut, fmt.Sprintf(windowURL, created.ID),
			reqdto.RescheduleReservationRequest{StartTime: start.Add(2 * time.Hour), EndTime: end.Add(2 * time.Hour)}, member.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, "pending", dbtest.ReservationStatus(t, s.DB, created.ID))
	})

	s.Run("Normal case: owner withdraws a pending reservation", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		start, end := s.slot(15, time.Hour)

		created := s.request(member, uuid.New(), start, end)

		w := httptest.PerformRequest(t, s.Router, http.MethodDelete, fmt.Sprintf(reservationURL, created.ID), nil, member.Token)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		w = httptest.PerformRequest(t, s.Router, http.MethodGet, fmt.Sprintf(reservationURL, created.ID), nil, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusNotFound, "")
	})

	s.Run("Normal case: approved reservation inside the lead-time guard cannot be withdrawn", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		start := time.Now().Add(2 * time.Hour)
		id := dbtest.InsertReservation(t, s.DB, uuid.New(), member.ID, start, start.Add(time.Hour), "approved")

		w := httptest.PerformRequest(t, s.Router, http.MethodDelete, fmt.Sprintf(reservationURL, id), nil, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "")
	})
}

// =============================================================================
// TestPolicyAndAccess - validation and authorization at the edge
// =============================================================================

func (s *ReservationSuite) TestPolicyAndAccess() {
	s.Run("Error case: window before opening hour", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		start, end := s.slot(8, time.Hour)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, reservationsURL,
			reqdto.CreateReservationRequest{ResourceID: uuid.New(), StartTime: start, EndTime: end}, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusBadRequest, "opening hour")
	})

	s.Run("Error case: end not after start", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		start, _ := s.slot(10, time.Hour)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, reservationsURL,
			reqdto.CreateReservationRequest{ResourceID: uuid.New(), StartTime: start, EndTime: start}, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusBadRequest, "")
	})

	s.Run("Error case: members cannot approve or see the queue", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		start, end := s.slot(10, time.Hour)
		created := s.request(member, uuid.New(), start, end)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, created.ID), nil, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusForbidden, "")

		w = httptest.PerformRequest(t, s.Router, http.MethodGet, pendingURL, nil, member.Token)
		httptest.AssertErrorResponse(t, w, http.StatusForbidden, "")
	})

	s.Run("Error case: another member cannot read or withdraw", func() {
		t := s.T()
		owner := s.jwt.NewCaller(t, user.RoleMember)
		other := s.jwt.NewCaller(t, user.RoleMember)
		start, end := s.slot(10, time.Hour)
		created := s.request(owner, uuid.New(), start, end)

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, fmt.Sprintf(reservationURL, created.ID), nil, other.Token)
		httptest.AssertErrorResponse(t, w, http.StatusForbidden, "")

		w = httptest.PerformRequest(t, s.Router, http.MethodDelete, fmt.Sprintf(reservationURL, created.ID), nil, other.Token)
		httptest.AssertErrorResponse(t, w, http.StatusForbidden, "")
	})

	s.Run("Error case: expired token", func() {
		t := s.T()
		token := s.jwt.CreateExpiredToken(t, uuid.New(), user.RoleMember)

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, reservationsURL, nil, token)
		httptest.AssertErrorResponse(t, w, http.StatusUnauthorized, "")
	})
}

// =============================================================================
// TestQueries - listing, pending queue and availability
// =============================================================================

func (s *ReservationSuite) TestQueries() {
	s.Run("Normal case: own list pages in start order", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		resourceID := uuid.New()
		var ids []uuid.UUID
		for _, hour := range []int{14, 10, 12} {
			start, end := s.slot(hour, time.Hour)
			ids = append(ids, s.request(member, resourceID, start, end).ID)
		}
		// start order: 10, 12, 14
		want := []uuid.UUID{ids[1], ids[2], ids[0]}

		var got []uuid.UUID
		next := ""
		for {
			url := reservationsURL + "?limit=2"
			if next != "" {
				url += "&after=" + next
			}
			w := httptest.PerformRequest(t, s.Router, http.MethodGet, url, nil, member.Token)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var page resdto.ReservationListResponse
			require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &page))
			for _, item := range page.Items {
				got = append(got, item.ID)
			}
			if page.NextCursor == nil {
				break
			}
			next = *page.NextCursor
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("list order mismatch (-want +got):\n%s", diff)
		}
	})

	s.Run("Normal case: approvers see pending requests across owners", func() {
		t := s.T()
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		start, end := s.slot(10, time.Hour)
		s.request(s.jwt.NewCaller(t, user.RoleMember), uuid.New(), start, end)
		s.request(s.jwt.NewCaller(t, user.RoleMember), uuid.New(), start, end)

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, pendingURL, nil, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var items []resdto.ReservationResponse
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &items))
		require.Len(t, items, 2)
	})

	s.Run("Normal case: availability reports approved overlaps only", func() {
		t := s.T()
		member := s.jwt.NewCaller(t, user.RoleMember)
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		resourceID := uuid.New()
		start, end := s.slot(10, time.Hour)

		created := s.request(member, resourceID, start, end)
		query := fmt.Sprintf(availabilityURL, resourceID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

		w := httptest.PerformRequest(t, s.Router, http.MethodGet, query, nil, member.Token)
		var before resdto.AvailabilityResponse
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &before))
		require.True(t, before.Available, "pending reservations do not block")

		w = httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, created.ID), nil, approver.Token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = httptest.PerformRequest(t, s.Router, http.MethodGet, query, nil, member.Token)
		var after resdto.AvailabilityResponse
		require.NoError(t, httptest.DecodeResponseBody(t, w.Body, &after))
		require.False(t, after.Available)
		require.Len(t, after.Conflicts, 1)
	})
}

// =============================================================================
// TestConcurrentApprovals - PostgreSQL keeps approved windows disjoint
// =============================================================================

func (s *ReservationSuite) TestConcurrentApprovals() {
	s.Run("Normal case: exactly one of many overlapping approvals wins", func() {
		t := s.T()
		approver := s.jwt.NewCaller(t, user.RoleApprover)
		resourceID := uuid.New()
		start, end := s.slot(10, time.Hour)

		const n = 12
		ids := make([]uuid.UUID, n)
		for i := range ids {
			ids[i] = s.request(s.jwt.NewCaller(t, user.RoleMember), resourceID, start, end).ID
		}

		codes := make([]int, n)
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w := httptest.PerformRequest(t, s.Router, http.MethodPost, fmt.Sprintf(approveURL, id), nil, approver.Token)
				codes[i] = w.Code
			}()
		}
		wg.Wait()

		var ok, conflicts int
		for _, code := range codes {
			switch code {
			case http.StatusOK:
				ok++
			case http.StatusConflict:
				conflicts++
			}
		}
		require.Equal(t, 1, ok, "codes: %v", codes)
		require.Equal(t, n-1, conflicts, "codes: %v", codes)
	})
}
