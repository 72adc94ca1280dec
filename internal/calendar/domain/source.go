// Package domain models external calendar sources and the cached events
// synced from them.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownProvider is returned for provider tags outside the closed set.
var ErrUnknownProvider = errors.New("unknown calendar provider")

// Provider identifies a supported CalDAV provider.
type Provider string

const (
	ProviderFastmail Provider = "fastmail"
	ProviderICloud   Provider = "icloud"
)

// IsValid checks the provider is a known variant.
func (p Provider) IsValid() bool {
	return p == ProviderFastmail || p == ProviderICloud
}

// sourceNamespace seeds the deterministic source id so the same
// provider + base URL maps to the same id across restarts.
var sourceNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// Source is a connected CalDAV account. Credentials are deliberately
// absent: they live in process configuration only.
type Source struct {
	ID             uuid.UUID
	Provider       Provider
	BaseURL        string
	CalendarHome   string
	LastSyncAt     *time.Time
	LastSyncResult string
}

// NewSource derives a source with a deterministic id.
func NewSource(provider Provider, baseURL string) (*Source, error) {
	if !provider.IsValid() {
		return nil, ErrUnknownProvider
	}
	return &Source{
		ID:       uuid.NewSHA1(sourceNamespace, []byte(string(provider)+"|"+baseURL)),
		Provider: provider,
		BaseURL:  baseURL,
	}, nil
}

// Credentials authenticate against a source. Never persisted, never logged.
type Credentials struct {
	Username string
	Password string
}

// CachedEvent is one blocker synced from an external calendar. Start and
// End are instants; all-day events span host-local midnights.
type CachedEvent struct {
	ID          uuid.UUID
	SourceID    uuid.UUID
	CalendarURL string
	UID         string
	Summary     string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// SyncStatus tags a sync-history row.
type SyncStatus string

const (
	SyncOK    SyncStatus = "ok"
	SyncError SyncStatus = "error"
)

// HistoryEntry records one sync attempt for a source.
type HistoryEntry struct {
	ID       int64
	SourceID uuid.UUID
	SyncedAt time.Time
	Status   SyncStatus
	Message  string
}

// HistoryKeep is how many history rows are retained per source.
const HistoryKeep = 50
