// Package application implements the CalDAV sync pipeline: discovery,
// calendar listing, event fetch, ICS expansion, atomic cache
// replacement, and history recording.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/michael/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
)

// ErrUnknownSource is returned when a sync is requested for a source id
// that is not registered.
var ErrUnknownSource = errors.New("unknown calendar source")

// Sync horizon offsets. Scheduled syncs reach back to catch recently
// moved events; manual syncs only look forward.
const (
	horizonBack    = 30 * 24 * time.Hour
	horizonForward = 60 * 24 * time.Hour
)

// RemoteClient is the CalDAV surface the syncer needs.
type RemoteClient interface {
	FindCalendarHome(ctx context.Context) (string, error)
	ListEventCalendars(ctx context.Context, home string) ([]caldav.Calendar, error)
	FetchEvents(ctx context.Context, calendarPath string, from, to time.Time) ([]caldav.CalendarObject, error)
}

// ClientFactory builds a RemoteClient for a source. Injected so tests
// can substitute a fake server.
type ClientFactory func(baseURL string, creds domain.Credentials) (RemoteClient, error)

// SourceStore is the persistence surface the syncer depends on.
type SourceStore interface {
	UpsertSource(ctx context.Context, s *domain.Source) error
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, syncedAt time.Time, result, calendarHome string) error
	GetSource(ctx context.Context, id uuid.UUID) (*domain.Source, error)
	ListSources(ctx context.Context) ([]*domain.Source, error)
	ReplaceEventsForSource(ctx context.Context, sourceID uuid.UUID, events []domain.CachedEvent) error
	AppendHistory(ctx context.Context, e domain.HistoryEntry) error
}

// Syncer runs the per-source pipeline. Credentials are held here for
// the lifetime of the process and never reach the store or the logs.
type Syncer struct {
	store     SourceStore
	creds     map[uuid.UUID]domain.Credentials
	newClient ClientFactory
	clock     sharedDomain.Clock
	hostLoc   *time.Location
	logger    *slog.Logger
}

// NewSyncer creates the syncer.
func NewSyncer(store SourceStore, newClient ClientFactory, clock sharedDomain.Clock, hostLoc *time.Location, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:     store,
		creds:     make(map[uuid.UUID]domain.Credentials),
		newClient: newClient,
		clock:     clock,
		hostLoc:   hostLoc,
		logger:    logger,
	}
}

// Register upserts a configured source and retains its credentials in
// memory.
func (s *Syncer) Register(ctx context.Context, src *domain.Source, creds domain.Credentials) error {
	if err := s.store.UpsertSource(ctx, src); err != nil {
		return fmt.Errorf("failed to register source %s: %w", src.Provider, err)
	}
	s.creds[src.ID] = creds
	return nil
}

// SyncAll runs the pipeline for every registered source. A failure for
// one source is recorded and does not abort the pass.
func (s *Syncer) SyncAll(ctx context.Context, manual bool) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		s.logger.Error("failed to list calendar sources", "error", err)
		return
	}
	for _, src := range sources {
		if _, ok := s.creds[src.ID]; !ok {
			continue // persisted by a previous run, not configured now
		}
		if err := s.SyncSource(ctx, src.ID, manual); err != nil {
			s.logger.Warn("calendar sync failed", "provider", src.Provider, "error", err)
		}
	}
}

// SyncSource runs the full pipeline for one source and records the
// outcome on the source row and in the history log.
func (s *Syncer) SyncSource(ctx context.Context, sourceID uuid.UUID, manual bool) error {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	creds, ok := s.creds[src.ID]
	if !ok {
		return fmt.Errorf("no credentials configured for source %s", src.Provider)
	}

	now := s.clock.Now()
	from := now
	if !manual {
		from = now.Add(-horizonBack)
	}
	to := now.Add(horizonForward)

	syncErr := s.runPipeline(ctx, src, creds, from, to)

	result := "ok"
	status := domain.SyncOK
	message := ""
	if syncErr != nil {
		status = domain.SyncError
		message = syncErr.Error()
		result = "error: " + message
	}
	if err := s.store.UpdateSyncStatus(ctx, src.ID, now, result, src.CalendarHome); err != nil {
		s.logger.Error("failed to update sync status", "provider", src.Provider, "error", err)
	}
	if err := s.store.AppendHistory(ctx, domain.HistoryEntry{
		SourceID: src.ID,
		SyncedAt: now,
		Status:   status,
		Message:  message,
	}); err != nil {
		s.logger.Error("failed to append sync history", "provider", src.Provider, "error", err)
	}
	return syncErr
}

// runPipeline performs discovery, fetch, expansion, and the atomic
// cache swap. It sets src.CalendarHome when discovery runs.
func (s *Syncer) runPipeline(ctx context.Context, src *domain.Source, creds domain.Credentials, from, to time.Time) error {
	client, err := s.newClient(src.BaseURL, creds)
	if err != nil {
		return err
	}

	home := src.CalendarHome
	if home == "" {
		home, err = client.FindCalendarHome(ctx)
		if err != nil {
			return err
		}
		src.CalendarHome = home
	}

	calendars, err := client.ListEventCalendars(ctx, home)
	if err != nil {
		return err
	}

	x := &expander{hostLoc: s.hostLoc, logger: s.logger}
	var events []domain.CachedEvent
	for _, cal := range calendars {
		objects, err := client.FetchEvents(ctx, cal.Path, from, to)
		if err != nil {
			return fmt.Errorf("calendar %s: %w", cal.Path, err)
		}
		events = append(events, x.Expand(src.ID, cal.Path, objects, from, to)...)
	}

	if err := s.store.ReplaceEventsForSource(ctx, src.ID, events); err != nil {
		return fmt.Errorf("failed to replace cached events: %w", err)
	}

	s.logger.Info("calendar synced",
		"provider", src.Provider,
		"calendars", len(calendars),
		"events", len(events),
	)
	return nil
}
