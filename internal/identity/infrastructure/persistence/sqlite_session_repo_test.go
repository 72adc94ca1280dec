package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/michael/internal/identity/application"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

func testSession(token string, now time.Time) application.Session {
	return application.Session{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(application.SessionTTL),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := NewSQLiteSessionRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	s := testSession("tok-1", now)
	require.NoError(t, repo.Insert(ctx, s))

	got, err := repo.Find(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.ExpiresAt.Equal(s.ExpiresAt))
}

func TestSessionFindMissing(t *testing.T) {
	repo := NewSQLiteSessionRepository(openTestDB(t))

	got, err := repo.Find(context.Background(), "absent")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionDeleteIsIdempotent(t *testing.T) {
	repo := NewSQLiteSessionRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, testSession("tok-1", now)))
	require.NoError(t, repo.Delete(ctx, "tok-1"))
	require.NoError(t, repo.Delete(ctx, "tok-1"))

	got, err := repo.Find(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionDeleteExpired(t *testing.T) {
	repo := NewSQLiteSessionRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	fresh := testSession("fresh", now)
	stale := testSession("stale", now.Add(-application.SessionTTL-time.Hour))
	boundary := testSession("boundary", now.Add(-application.SessionTTL))
	for _, s := range []application.Session{fresh, stale, boundary} {
		require.NoError(t, repo.Insert(ctx, s))
	}

	require.NoError(t, repo.DeleteExpired(ctx, now))

	got, err := repo.Find(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repo.Find(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	// A session expiring exactly now is already invalid.
	got, err = repo.Find(ctx, "boundary")
	require.NoError(t, err)
	assert.Nil(t, got)
}
