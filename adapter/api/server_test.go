package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bookingApp "github.com/felixgeelhaar/michael/internal/booking/application"
	bookingDomain "github.com/felixgeelhaar/michael/internal/booking/domain"
	bookingPersistence "github.com/felixgeelhaar/michael/internal/booking/infrastructure/persistence"
	calendarApp "github.com/felixgeelhaar/michael/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/michael/internal/calendar/domain"
	calendarPersistence "github.com/felixgeelhaar/michael/internal/calendar/infrastructure/persistence"
	identityApp "github.com/felixgeelhaar/michael/internal/identity/application"
	identityPersistence "github.com/felixgeelhaar/michael/internal/identity/infrastructure/persistence"
	"github.com/felixgeelhaar/michael/internal/parser"
	schedulingApp "github.com/felixgeelhaar/michael/internal/scheduling/application"
	schedulingDomain "github.com/felixgeelhaar/michael/internal/scheduling/domain"
	schedulingPersistence "github.com/felixgeelhaar/michael/internal/scheduling/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/michael/pkg/observability"
)

const testAdminPassword = "correct horse battery staple"

type fakeParser struct {
	result *parser.Result
	err    error
}

func (p *fakeParser) Parse(ctx context.Context, req parser.Request) (*parser.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type noopMailer struct{}

func (noopMailer) SendConfirmation(*bookingDomain.Booking) error { return nil }
func (noopMailer) SendCancellation(*bookingDomain.Booking) error { return nil }

type apiFixture struct {
	mux    http.Handler
	parser *fakeParser
}

// newAPIFixture wires the full handler stack over an in-memory database.
// The host works Tuesdays 09:00-17:00 UTC with no minimum notice; the
// clock is pinned to Tue 2026-02-10 08:00 UTC.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(ctx, db))

	bookingRepo := bookingPersistence.NewSQLiteBookingRepository(db)
	availabilityRepo := schedulingPersistence.NewSQLiteAvailabilityRepository(db)
	calendarRepo := calendarPersistence.NewSQLiteCalendarRepository(db)
	sessionRepo := identityPersistence.NewSQLiteSessionRepository(db)

	require.NoError(t, availabilityRepo.ReplaceSlots(ctx, []schedulingDomain.WeeklySlot{
		{DayOfWeek: 2, StartTime: "09:00", EndTime: "17:00"},
	}))
	require.NoError(t, availabilityRepo.SaveSettings(ctx, schedulingDomain.Settings{
		MinNoticeHours:         0,
		BookingWindowDays:      30,
		DefaultDurationMinutes: 30,
	}))

	clock := sharedDomain.FixedClock{Instant: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)}

	bookings := bookingApp.NewService(bookingRepo, availabilityRepo, calendarRepo, noopMailer{}, clock, time.UTC, nil)
	slots := schedulingApp.NewSlotService(availabilityRepo, bookingRepo, calendarRepo, clock, time.UTC, nil)
	sessions := identityApp.NewSessionService(sessionRepo, clock, testAdminPassword)

	factory := func(baseURL string, creds calendarDomain.Credentials) (calendarApp.RemoteClient, error) {
		return nil, errors.New("no remote configured")
	}
	syncer := calendarApp.NewSyncer(calendarRepo, factory, clock, time.UTC, nil)
	runner := calendarApp.NewRunner(syncer, time.Hour, nil)

	p := &fakeParser{result: &parser.Result{Message: "Here are your options."}}
	public := NewPublicHandler(p, slots, bookings, nil)
	admin := NewAdminHandler(sessions, bookings, slots, calendarRepo, runner, time.UTC, false, nil)
	server := NewServer(DefaultServerConfig(), public, admin, observability.NewHealthRegistry(), nil)

	return &apiFixture{mux: server.Mux(), parser: p}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": testAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "michael_session" {
			return c
		}
	}
	t.Fatal("login response did not set the session cookie")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
