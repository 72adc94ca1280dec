// Package persistence implements the availability and settings
// repositories on SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/felixgeelhaar/michael/internal/scheduling/domain"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
)

// SQLiteAvailabilityRepository persists the host's weekly template and
// the scheduling-settings singleton.
type SQLiteAvailabilityRepository struct {
	db *sql.DB
}

// NewSQLiteAvailabilityRepository creates the repository.
func NewSQLiteAvailabilityRepository(db *sql.DB) *SQLiteAvailabilityRepository {
	return &SQLiteAvailabilityRepository{db: db}
}

// Slots returns the weekly template ordered by day and start time.
func (r *SQLiteAvailabilityRepository) Slots(ctx context.Context) ([]domain.WeeklySlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time
		FROM availability_slots
		ORDER BY day_of_week, start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]domain.WeeklySlot, 0)
	for rows.Next() {
		var s domain.WeeklySlot
		if err := rows.Scan(&s.ID, &s.DayOfWeek, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ReplaceSlots swaps the whole weekly template in one transaction.
func (r *SQLiteAvailabilityRepository) ReplaceSlots(ctx context.Context, slots []domain.WeeklySlot) error {
	if err := domain.ValidateWeeklySlots(slots); err != nil {
		return err
	}
	return database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots`); err != nil {
			return err
		}
		for _, s := range slots {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO availability_slots (day_of_week, start_time, end_time)
				VALUES (?, ?, ?)`, s.DayOfWeek, s.StartTime, s.EndTime); err != nil {
				return err
			}
		}
		return nil
	})
}

// Settings reads the singleton, falling back to defaults when unset.
func (r *SQLiteAvailabilityRepository) Settings(ctx context.Context) (domain.Settings, error) {
	var (
		s         domain.Settings
		videoLink sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT min_notice_hours, booking_window_days, default_duration_minutes, video_link
		FROM scheduling_settings WHERE id = 1`).
		Scan(&s.MinNoticeHours, &s.BookingWindowDays, &s.DefaultDurationMinutes, &videoLink)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	s.VideoLink = videoLink.String
	return s, nil
}

// SaveSettings replaces the singleton.
func (r *SQLiteAvailabilityRepository) SaveSettings(ctx context.Context, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var videoLink sql.NullString
	if s.VideoLink != "" {
		videoLink = sql.NullString{String: s.VideoLink, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduling_settings (id, min_notice_hours, booking_window_days, default_duration_minutes, video_link)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			min_notice_hours = excluded.min_notice_hours,
			booking_window_days = excluded.booking_window_days,
			default_duration_minutes = excluded.default_duration_minutes,
			video_link = excluded.video_link`,
		s.MinNoticeHours, s.BookingWindowDays, s.DefaultDurationMinutes, videoLink)
	return err
}
