// Package persistence implements the calendar-source, cached-event, and
// sync-history repositories on SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/michael/internal/calendar/domain"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteCalendarRepository persists sources, their cached events, and
// sync history.
type SQLiteCalendarRepository struct {
	db *sql.DB
}

// NewSQLiteCalendarRepository creates the repository.
func NewSQLiteCalendarRepository(db *sql.DB) *SQLiteCalendarRepository {
	return &SQLiteCalendarRepository{db: db}
}

// UpsertSource inserts or refreshes a source row. The deterministic id
// makes this stable across restarts.
func (r *SQLiteCalendarRepository) UpsertSource(ctx context.Context, s *domain.Source) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_sources (id, provider, base_url)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			provider = excluded.provider,
			base_url = excluded.base_url`,
		s.ID.String(), string(s.Provider), s.BaseURL)
	return err
}

// UpdateSyncStatus records the outcome of a sync pass and, when
// discovered, the calendar-home URL so later syncs skip discovery.
func (r *SQLiteCalendarRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, syncedAt time.Time, result, calendarHome string) error {
	var home sql.NullString
	if calendarHome != "" {
		home = sql.NullString{String: calendarHome, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE calendar_sources
		SET last_sync_at = ?, last_sync_result = ?,
		    calendar_home = COALESCE(?, calendar_home)
		WHERE id = ?`,
		syncedAt.UTC().Format(time.RFC3339), result, home, id.String())
	return err
}

// GetSource returns the source or nil when absent.
func (r *SQLiteCalendarRepository) GetSource(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, provider, base_url, calendar_home, last_sync_at, last_sync_result
		FROM calendar_sources WHERE id = ?`, id.String())
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListSources returns all sources ordered by provider.
func (r *SQLiteCalendarRepository) ListSources(ctx context.Context) ([]*domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, base_url, calendar_home, last_sync_at, last_sync_result
		FROM calendar_sources ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// ReplaceEventsForSource atomically swaps the cached events of one
// source. A concurrent reader sees either the complete old set or the
// complete new set, never a mix.
func (r *SQLiteCalendarRepository) ReplaceEventsForSource(ctx context.Context, sourceID uuid.UUID, events []domain.CachedEvent) error {
	return database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cached_events WHERE source_id = ?`, sourceID.String()); err != nil {
			return err
		}
		for _, e := range events {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cached_events (id, source_id, calendar_url, uid, summary, start_epoch, end_epoch, all_day)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID.String(), sourceID.String(), e.CalendarURL, e.UID, e.Summary,
				e.Start.Unix(), e.End.Unix(), boolToInt(e.AllDay)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindEventsInRange returns cached events whose half-open interval
// intersects [from, to), across all sources.
func (r *SQLiteCalendarRepository) FindEventsInRange(ctx context.Context, from, to time.Time) ([]domain.CachedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, calendar_url, uid, summary, start_epoch, end_epoch, all_day
		FROM cached_events
		WHERE start_epoch < ? AND end_epoch > ?
		ORDER BY start_epoch`, to.Unix(), from.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.CachedEvent
	for rows.Next() {
		var (
			idStr, sourceStr, calURL, uid string
			summary                       sql.NullString
			startEpoch, endEpoch          int64
			allDay                        int
		)
		if err := rows.Scan(&idStr, &sourceStr, &calURL, &uid, &summary, &startEpoch, &endEpoch, &allDay); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt cached event id %q: %w", idStr, err)
		}
		sourceID, err := uuid.Parse(sourceStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt cached event source %q: %w", sourceStr, err)
		}
		events = append(events, domain.CachedEvent{
			ID:          id,
			SourceID:    sourceID,
			CalendarURL: calURL,
			UID:         uid,
			Summary:     summary.String,
			Start:       time.Unix(startEpoch, 0).UTC(),
			End:         time.Unix(endEpoch, 0).UTC(),
			AllDay:      allDay != 0,
		})
	}
	return events, rows.Err()
}

// AppendHistory records one sync attempt and prunes the source's
// history to the retention limit.
func (r *SQLiteCalendarRepository) AppendHistory(ctx context.Context, e domain.HistoryEntry) error {
	return database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		var message sql.NullString
		if e.Message != "" {
			message = sql.NullString{String: e.Message, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_history (source_id, synced_at, status, message)
			VALUES (?, ?, ?, ?)`,
			e.SourceID.String(), e.SyncedAt.UTC().Format(time.RFC3339), string(e.Status), message); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM sync_history
			WHERE source_id = ? AND id NOT IN (
				SELECT id FROM sync_history
				WHERE source_id = ?
				ORDER BY synced_at DESC, id DESC
				LIMIT ?
			)`, e.SourceID.String(), e.SourceID.String(), domain.HistoryKeep)
		return err
	})
}

// ListHistory returns the most recent limit entries for a source.
func (r *SQLiteCalendarRepository) ListHistory(ctx context.Context, sourceID uuid.UUID, limit int) ([]domain.HistoryEntry, error) {
	if limit < 1 || limit > domain.HistoryKeep {
		limit = domain.HistoryKeep
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, synced_at, status, message
		FROM sync_history
		WHERE source_id = ?
		ORDER BY synced_at DESC, id DESC
		LIMIT ?`, sourceID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e         domain.HistoryEntry
			sourceStr string
			syncedStr string
			statusStr string
			message   sql.NullString
		)
		if err := rows.Scan(&e.ID, &sourceStr, &syncedStr, &statusStr, &message); err != nil {
			return nil, err
		}
		sourceUUID, err := uuid.Parse(sourceStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt history source %q: %w", sourceStr, err)
		}
		syncedAt, err := time.Parse(time.RFC3339, syncedStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt history timestamp %q: %w", syncedStr, err)
		}
		e.SourceID = sourceUUID
		e.SyncedAt = syncedAt
		e.Status = domain.SyncStatus(statusStr)
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanSource(row interface{ Scan(...any) error }) (*domain.Source, error) {
	var (
		idStr, providerStr, baseURL string
		calendarHome                sql.NullString
		lastSyncAt                  sql.NullString
		lastSyncResult              sql.NullString
	)
	if err := row.Scan(&idStr, &providerStr, &baseURL, &calendarHome, &lastSyncAt, &lastSyncResult); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt source id %q: %w", idStr, err)
	}
	s := &domain.Source{
		ID:             id,
		Provider:       domain.Provider(providerStr),
		BaseURL:        baseURL,
		CalendarHome:   calendarHome.String,
		LastSyncResult: lastSyncResult.String,
	}
	if lastSyncAt.Valid {
		t, err := time.Parse(time.RFC3339, lastSyncAt.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt source last_sync_at %q: %w", lastSyncAt.String, err)
		}
		s.LastSyncAt = &t
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
