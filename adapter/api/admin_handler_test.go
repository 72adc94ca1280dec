package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRequiresSession(t *testing.T) {
	f := newAPIFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/session"},
		{http.MethodGet, "/api/admin/bookings"},
		{http.MethodGet, "/api/admin/dashboard"},
		{http.MethodGet, "/api/admin/calendars"},
		{http.MethodGet, "/api/admin/availability"},
		{http.MethodGet, "/api/admin/settings"},
	} {
		rec := f.do(t, route.method, route.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "guess"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newAPIFixture(t)

	cookie := f.login(t)

	assert.Equal(t, "/api/admin", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.False(t, cookie.Secure, "secure flag is off in development")
	assert.NotEmpty(t, cookie.Value)

	rec := f.do(t, http.MethodGet, "/api/admin/session", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/admin/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/session", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout without a session still succeeds.
	rec = f.do(t, http.MethodPost, "/api/admin/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGarbageSessionCookieRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/session", nil,
		&http.Cookie{Name: "michael_session", Value: "forged"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminBookingLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/book",
		bookBody("2026-02-10T13:00:00Z", "2026-02-10T13:30:00Z"))
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeBody(t, rec)["bookingId"].(string)

	rec = f.do(t, http.MethodGet, "/api/admin/bookings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["totalCount"])
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(20), body["pageSize"])

	rec = f.do(t, http.MethodGet, "/api/admin/bookings/"+id, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Intro call", decodeBody(t, rec)["title"])

	rec = f.do(t, http.MethodPost, "/api/admin/bookings/"+id+"/cancel", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/bookings/"+id, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	// The slot opens up again.
	rec = f.do(t, http.MethodPost, "/api/book",
		bookBody("2026-02-10T13:00:00Z", "2026-02-10T13:30:00Z"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminBookingNotFound(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/admin/bookings/"+uuid.NewString(), nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/bookings/not-a-uuid", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/bookings/"+uuid.NewString()+"/cancel", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncUnknownSourceIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/admin/calendars/"+uuid.NewString()+"/sync", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/calendars/not-a-uuid/sync", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDashboard(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/admin/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["upcomingCount"])
	assert.NotContains(t, body, "nextBookingTime")

	resp := f.do(t, http.MethodPost, "/api/book",
		bookBody("2026-02-10T13:00:00Z", "2026-02-10T13:30:00Z"))
	require.Equal(t, http.StatusOK, resp.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["upcomingCount"])
	assert.Equal(t, "2026-02-10T13:00:00Z", body["nextBookingTime"])
	assert.Equal(t, "Intro call", body["nextBookingTitle"])
}

func TestAdminAvailabilityRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPut, "/api/admin/availability", map[string]any{
		"slots": []map[string]any{
			{"dayOfWeek": 1, "startTime": "10:00", "endTime": "12:00"},
			{"dayOfWeek": 4, "startTime": "14:00", "endTime": "18:00"},
		},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/availability", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decodeBody(t, rec)["slots"].([]any)
	require.Len(t, slots, 2)
	first := slots[0].(map[string]any)
	assert.Equal(t, float64(1), first["dayOfWeek"])
	assert.Equal(t, "10:00", first["startTime"])
}

func TestAdminAvailabilityValidation(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPut, "/api/admin/availability", map[string]any{
		"slots": []map[string]any{
			{"dayOfWeek": 8, "startTime": "10:00", "endTime": "12:00"},
		},
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/availability", map[string]any{
		"slots": []map[string]any{
			{"dayOfWeek": 1, "startTime": "12:00", "endTime": "10:00"},
		},
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodPut, "/api/admin/settings", map[string]any{
		"minNoticeHours":         12,
		"bookingWindowDays":      14,
		"defaultDurationMinutes": 60,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/settings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(12), body["minNoticeHours"])
	assert.Equal(t, float64(14), body["bookingWindowDays"])
	assert.Equal(t, float64(60), body["defaultDurationMinutes"])

	rec = f.do(t, http.MethodPut, "/api/admin/settings", map[string]any{
		"minNoticeHours":         -1,
		"bookingWindowDays":      14,
		"defaultDurationMinutes": 60,
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCalendarsEmpty(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/admin/calendars", nil, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["calendars"])
}

func TestAdminCalendarView(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	resp := f.do(t, http.MethodPost, "/api/book",
		bookBody("2026-02-10T13:00:00Z", "2026-02-10T13:30:00Z"))
	require.Equal(t, http.StatusOK, resp.Code)

	rec := f.do(t, http.MethodGet,
		"/api/admin/calendar-view?start=2026-02-10T00:00:00Z&end=2026-02-11T00:00:00Z", nil, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody(t, rec)["events"].([]any)
	require.NotEmpty(t, events)

	var sawAvailability, sawBooking bool
	for _, raw := range events {
		e := raw.(map[string]any)
		switch e["type"] {
		case "availability":
			sawAvailability = true
		case "booking":
			sawBooking = true
			assert.Equal(t, "Intro call", e["title"])
		}
	}
	assert.True(t, sawAvailability)
	assert.True(t, sawBooking)
}

func TestAdminCalendarViewValidation(t *testing.T) {
	f := newAPIFixture(t)
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/admin/calendar-view?start=bad&end=2026-02-11T00:00:00Z", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet,
		"/api/admin/calendar-view?start=2026-02-11T00:00:00Z&end=2026-02-10T00:00:00Z", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
