// Package persistence implements the booking repository on SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/michael/internal/booking/domain"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// ErrConflict is returned when an insert would overlap a confirmed booking.
var ErrConflict = errors.New("a confirmed booking overlaps the requested slot")

// SQLiteBookingRepository persists bookings. Offset datetimes are stored
// as RFC 3339 strings for display; epoch seconds are stored alongside
// for range queries, and both are written together on every insert.
type SQLiteBookingRepository struct {
	db *sql.DB
}

// NewSQLiteBookingRepository creates the repository.
func NewSQLiteBookingRepository(db *sql.DB) *SQLiteBookingRepository {
	return &SQLiteBookingRepository{db: db}
}

const bookingColumns = `id, name, email, phone, title, description,
	start_at, end_at, timezone, duration_minutes, status, created_at`

// InsertIfNoConflict atomically re-checks for overlapping confirmed
// bookings and inserts the booking when the slot is free. This
// transaction is the serialization point between concurrent book
// requests.
func (r *SQLiteBookingRepository) InsertIfNoConflict(ctx context.Context, b *domain.Booking) error {
	return database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		var overlapping int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bookings
			WHERE status = 'confirmed' AND start_epoch < ? AND end_epoch > ?`,
			b.End.Unix(), b.Start.Unix(),
		).Scan(&overlapping)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (id, name, email, phone, title, description,
				start_at, end_at, timezone, duration_minutes,
				start_epoch, end_epoch, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(), b.Name, b.Email, nullString(b.Phone), b.Title, nullString(b.Description),
			b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339), b.Timezone, b.DurationMinutes,
			b.Start.Unix(), b.End.Unix(), string(b.Status), b.CreatedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
}

// FindByID returns the booking or nil when absent.
func (r *SQLiteBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id.String())
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// ListFilter narrows and pages List results.
type ListFilter struct {
	Status   domain.Status // empty means all
	Page     int
	PageSize int
}

// Normalized clamps paging to page ≥ 1 and pageSize in [1, 100] with a
// default of 20.
func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return f
}

// List returns a page of bookings (newest start first) and the total
// count matching the filter.
func (r *SQLiteBookingRepository) List(ctx context.Context, f ListFilter) ([]*domain.Booking, int, error) {
	f = f.Normalized()
	where := ""
	args := []any{}
	if f.Status.IsValid() {
		where = " WHERE status = ?"
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.PageSize
	listArgs := append(args, f.PageSize, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings`+where+
			` ORDER BY start_epoch DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0, f.PageSize)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

// FindConfirmedInRange returns confirmed bookings whose half-open
// interval intersects [from, to).
func (r *SQLiteBookingRepository) FindConfirmedInRange(ctx context.Context, from, to time.Time) ([]*domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status = 'confirmed' AND start_epoch < ? AND end_epoch > ?
		 ORDER BY start_epoch`, to.Unix(), from.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// Cancel transitions a confirmed booking to cancelled. The first return
// value is false when no booking with the id exists; cancelling an
// already-cancelled booking reports found with no change.
func (r *SQLiteBookingRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'cancelled' WHERE id = ?`, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountUpcoming counts confirmed bookings starting at or after now.
func (r *SQLiteBookingRepository) CountUpcoming(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE status = 'confirmed' AND start_epoch >= ?`,
		now.Unix()).Scan(&n)
	return n, err
}

// NextUpcoming returns the next confirmed booking at or after now, or
// nil when none exists.
func (r *SQLiteBookingRepository) NextUpcoming(ctx context.Context, now time.Time) (*domain.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status = 'confirmed' AND start_epoch >= ?
		 ORDER BY start_epoch LIMIT 1`, now.Unix())
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		idStr, name, email, title string
		phone, description        sql.NullString
		startStr, endStr, tz      string
		durationMinutes           int
		statusStr, createdStr     string
	)
	if err := row.Scan(&idStr, &name, &email, &phone, &title, &description,
		&startStr, &endStr, &tz, &durationMinutes, &statusStr, &createdStr); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking id %q: %w", idStr, err)
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking start %q: %w", startStr, err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking end %q: %w", endStr, err)
	}
	createdAt, err := time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking created_at %q: %w", createdStr, err)
	}

	return &domain.Booking{
		ID:              id,
		Name:            name,
		Email:           email,
		Phone:           phone.String,
		Title:           title,
		Description:     description.String,
		Start:           start,
		End:             end,
		Timezone:        tz,
		DurationMinutes: durationMinutes,
		Status:          domain.Status(statusStr),
		CreatedAt:       createdAt,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
