package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	bookingApp "github.com/felixgeelhaar/michael/internal/booking/application"
	bookingDomain "github.com/felixgeelhaar/michael/internal/booking/domain"
	"github.com/felixgeelhaar/michael/internal/parser"
	schedulingApp "github.com/felixgeelhaar/michael/internal/scheduling/application"
	schedulingDomain "github.com/felixgeelhaar/michael/internal/scheduling/domain"
)

// Parser is the natural-language availability parser surface.
type Parser interface {
	Parse(ctx context.Context, req parser.Request) (*parser.Result, error)
}

// PublicHandler serves the unauthenticated booking flow.
type PublicHandler struct {
	parser   Parser
	slots    *schedulingApp.SlotService
	bookings *bookingApp.Service
	logger   *slog.Logger
}

// NewPublicHandler creates the public handler.
func NewPublicHandler(p Parser, slots *schedulingApp.SlotService, bookings *bookingApp.Service, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{parser: p, slots: slots, bookings: bookings, logger: logger}
}

type parseRequest struct {
	Message          string   `json:"message"`
	Timezone         string   `json:"timezone"`
	PreviousMessages []string `json:"previousMessages"`
}

// Parse handles POST /api/parse.
func (h *PublicHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil || req.Timezone == "" {
		writeError(w, http.StatusBadRequest, "timezone is not a valid IANA identifier")
		return
	}

	result, err := h.parser.Parse(r.Context(), parser.Request{
		Message:          req.Message,
		Timezone:         req.Timezone,
		PreviousMessages: req.PreviousMessages,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "availability parser is unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"parseResult":   map[string]any{"availabilityWindows": result.Windows},
		"systemMessage": result.Message,
	})
}

type slotWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

type slotsRequest struct {
	AvailabilityWindows []slotWindow `json:"availabilityWindows"`
	DurationMinutes     int          `json:"durationMinutes"`
	Timezone            string       `json:"timezone"`
}

type slotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Slots handles POST /api/slots.
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	var req slotsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	displayLoc, err := time.LoadLocation(req.Timezone)
	if err != nil || req.Timezone == "" {
		writeError(w, http.StatusBadRequest, "timezone is not a valid IANA identifier")
		return
	}

	windows := make([]schedulingApp.Window, 0, len(req.AvailabilityWindows))
	for _, win := range req.AvailabilityWindows {
		start, err := time.Parse(time.RFC3339, win.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "window start is not a valid ISO-8601 datetime")
			return
		}
		end, err := time.Parse(time.RFC3339, win.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "window end is not a valid ISO-8601 datetime")
			return
		}
		windows = append(windows, schedulingApp.Window{Start: start, End: end})
	}

	slots, err := h.slots.OpenSlots(r.Context(), windows, time.Duration(req.DurationMinutes)*time.Minute, displayLoc)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("slot computation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute slots")
		return
	}

	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			Start: s.Start.Format(time.RFC3339),
			End:   s.End.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

type bookRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slot        struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"slot"`
	DurationMinutes int    `json:"durationMinutes"`
	Timezone        string `json:"timezone"`
}

// Book handles POST /api/book.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, err := time.Parse(time.RFC3339, req.Slot.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "slot start is not a valid ISO-8601 datetime")
		return
	}
	end, err := time.Parse(time.RFC3339, req.Slot.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "slot end is not a valid ISO-8601 datetime")
		return
	}

	booking, err := h.bookings.Book(r.Context(), bookingApp.BookRequest{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Title:           req.Title,
		Description:     req.Description,
		Start:           start,
		End:             end,
		Timezone:        req.Timezone,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		switch {
		case errors.Is(err, bookingApp.ErrSlotUnavailable):
			writeErrorCode(w, http.StatusConflict, err.Error(), "slot_unavailable")
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("booking failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookingId": booking.ID.String(),
		"confirmed": true,
	})
}

// isValidationError reports whether err is a request-shape or domain
// validation failure that should surface as 400.
func isValidationError(err error) bool {
	validation := []error{
		bookingDomain.ErrEmptyName,
		bookingDomain.ErrEmptyTitle,
		bookingDomain.ErrInvalidEmail,
		bookingDomain.ErrInvalidDuration,
		bookingDomain.ErrSlotMismatch,
		bookingDomain.ErrInvalidTimezone,
		schedulingDomain.ErrInvalidDayOfWeek,
		schedulingDomain.ErrInvalidTimeOfDay,
		schedulingDomain.ErrInvalidSlotRange,
		schedulingDomain.ErrNoAvailability,
		schedulingDomain.ErrInvalidMinNotice,
		schedulingDomain.ErrInvalidWindowDays,
		schedulingDomain.ErrInvalidDuration,
		schedulingApp.ErrNoWindows,
		schedulingApp.ErrInvalidWindow,
	}
	for _, v := range validation {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
