package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	bookingApp "github.com/felixgeelhaar/michael/internal/booking/application"
	bookingDomain "github.com/felixgeelhaar/michael/internal/booking/domain"
	bookingPersistence "github.com/felixgeelhaar/michael/internal/booking/infrastructure/persistence"
	calendarApp "github.com/felixgeelhaar/michael/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/michael/internal/calendar/domain"
	identityApp "github.com/felixgeelhaar/michael/internal/identity/application"
	schedulingApp "github.com/felixgeelhaar/michael/internal/scheduling/application"
	schedulingDomain "github.com/felixgeelhaar/michael/internal/scheduling/domain"
)

// sessionCookieName is the admin session cookie.
const sessionCookieName = "michael_session"

// CalendarStore is the admin-facing calendar persistence surface.
type CalendarStore interface {
	ListSources(ctx context.Context) ([]*calendarDomain.Source, error)
	ListHistory(ctx context.Context, sourceID uuid.UUID, limit int) ([]calendarDomain.HistoryEntry, error)
}

// AdminHandler serves the session-gated admin surface.
type AdminHandler struct {
	sessions  *identityApp.SessionService
	bookings  *bookingApp.Service
	slots     *schedulingApp.SlotService
	calendars CalendarStore
	runner    *calendarApp.Runner
	hostLoc   *time.Location
	secure    bool
	logger    *slog.Logger
}

// NewAdminHandler creates the admin handler. secure controls the
// session cookie's Secure attribute and is false only in development.
func NewAdminHandler(sessions *identityApp.SessionService, bookings *bookingApp.Service, slots *schedulingApp.SlotService, calendars CalendarStore, runner *calendarApp.Runner, hostLoc *time.Location, secure bool, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		sessions:  sessions,
		bookings:  bookings,
		slots:     slots,
		calendars: calendars,
		runner:    runner,
		hostLoc:   hostLoc,
		secure:    secure,
		logger:    logger,
	}
}

// RequireSession wraps admin routes with session validation. Invalid or
// expired sessions get 401 and the cookie cleared.
func (h *AdminHandler) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if err := h.sessions.Validate(r.Context(), cookie.Value); err != nil {
			h.clearCookie(w)
			writeError(w, http.StatusUnauthorized, "session is invalid or expired")
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, identityApp.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/api/admin",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Logout handles POST /api/admin/logout. It is idempotent.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}
	h.clearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Session handles GET /api/admin/session; RequireSession has already
// validated the cookie.
func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AdminHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/api/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

type bookingResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Timezone        string `json:"timezone"`
	DurationMinutes int    `json:"durationMinutes"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

func toBookingResponse(b *bookingDomain.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID.String(),
		Name:            b.Name,
		Email:           b.Email,
		Phone:           b.Phone,
		Title:           b.Title,
		Description:     b.Description,
		Start:           b.Start.Format(time.RFC3339),
		End:             b.End.Format(time.RFC3339),
		Timezone:        b.Timezone,
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListBookings handles GET /api/admin/bookings.
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := bookingPersistence.ListFilter{
		Page:     parseIntParam(q.Get("page"), 1),
		PageSize: parseIntParam(q.Get("pageSize"), 0),
	}
	// Any status other than the two known variants means "all".
	if s := bookingDomain.Status(q.Get("status")); s.IsValid() {
		filter.Status = s
	}

	bookings, total, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list bookings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	norm := filter.Normalized()
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings":   out,
		"totalCount": total,
		"page":       norm.Page,
		"pageSize":   norm.PageSize,
	})
}

// GetBooking handles GET /api/admin/bookings/{id}.
func (h *AdminHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	booking, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, bookingApp.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.logger.Error("failed to load booking", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load booking")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

// CancelBooking handles POST /api/admin/bookings/{id}/cancel.
func (h *AdminHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err := h.bookings.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, bookingApp.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.logger.Error("failed to cancel booking", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel booking")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Dashboard handles GET /api/admin/dashboard.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.bookings.GetDashboard(r.Context())
	if err != nil {
		h.logger.Error("failed to compute dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute dashboard")
		return
	}
	resp := map[string]any{"upcomingCount": d.UpcomingCount}
	if d.NextBookingTime != nil {
		resp["nextBookingTime"] = d.NextBookingTime.Format(time.RFC3339)
		resp["nextBookingTitle"] = d.NextBookingTitle
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCalendars handles GET /api/admin/calendars.
func (h *AdminHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	sources, err := h.calendars.ListSources(r.Context())
	if err != nil {
		h.logger.Error("failed to list calendar sources", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calendars")
		return
	}

	out := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		entry := map[string]any{
			"id":       s.ID.String(),
			"provider": string(s.Provider),
		}
		if s.LastSyncAt != nil {
			entry["lastSyncedAt"] = s.LastSyncAt.UTC().Format(time.RFC3339)
			entry["lastSyncResult"] = s.LastSyncResult
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendars": out})
}

// CalendarHistory handles GET /api/admin/calendars/{id}/history.
func (h *AdminHandler) CalendarHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "calendar source not found")
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)

	entries, err := h.calendars.ListHistory(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list sync history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sync history")
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"syncedAt": e.SyncedAt.UTC().Format(time.RFC3339),
			"status":   string(e.Status),
		}
		if e.Message != "" {
			entry["message"] = e.Message
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

// SyncCalendar handles POST /api/admin/calendars/{id}/sync. A sync pass
// already in flight yields 409 rather than queueing.
func (h *AdminHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "calendar source not found")
		return
	}

	started, err := h.runner.TriggerManual(r.Context(), id)
	if errors.Is(err, calendarApp.ErrUnknownSource) {
		writeError(w, http.StatusNotFound, "calendar source not found")
		return
	}
	if !started {
		writeErrorCode(w, http.StatusConflict, "a sync is already in progress", "sync_in_progress")
		return
	}
	if err != nil {
		h.logger.Warn("manual sync failed", "source_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type weeklySlotPayload struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// GetAvailability handles GET /api/admin/availability.
func (h *AdminHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slots.WeeklySlots(r.Context())
	if err != nil {
		h.logger.Error("failed to load availability", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}
	out := make([]weeklySlotPayload, 0, len(slots))
	for _, s := range slots {
		out = append(out, weeklySlotPayload{
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

// PutAvailability handles PUT /api/admin/availability.
func (h *AdminHandler) PutAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slots []weeklySlotPayload `json:"slots"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots := make([]schedulingDomain.WeeklySlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		slots = append(slots, schedulingDomain.WeeklySlot{
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	if err := h.slots.ReplaceWeeklySlots(r.Context(), slots); err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save availability", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save availability")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type settingsPayload struct {
	MinNoticeHours         int `json:"minNoticeHours"`
	BookingWindowDays      int `json:"bookingWindowDays"`
	DefaultDurationMinutes int `json:"defaultDurationMinutes"`
}

// GetSettings handles GET /api/admin/settings.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.slots.Settings(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{
		MinNoticeHours:         settings.MinNoticeHours,
		BookingWindowDays:      settings.BookingWindowDays,
		DefaultDurationMinutes: settings.DefaultDurationMinutes,
	})
}

// PutSettings handles PUT /api/admin/settings.
func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.slots.SaveSettings(r.Context(), schedulingDomain.Settings{
		MinNoticeHours:         req.MinNoticeHours,
		BookingWindowDays:      req.BookingWindowDays,
		DefaultDurationMinutes: req.DefaultDurationMinutes,
	})
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// CalendarView handles GET /api/admin/calendar-view.
func (h *AdminHandler) CalendarView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start is not a valid ISO-8601 datetime")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end is not a valid ISO-8601 datetime")
		return
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	loc := h.hostLoc
	if tz := q.Get("tz"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tz is not a valid IANA identifier")
			return
		}
	}

	events, err := h.slots.CalendarView(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to build calendar view", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar view")
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"type":   string(e.Type),
			"title":  e.Title,
			"start":  e.Start.In(loc).Format(time.RFC3339),
			"end":    e.End.In(loc).Format(time.RFC3339),
			"allDay": e.AllDay,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
