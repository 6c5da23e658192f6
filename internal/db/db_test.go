package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-stats/internal/store/storetest"
)

// openTestDB connects to TEST_DATABASE_URL, skipping when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestStoreContract(t *testing.T) {
	db := openTestDB(t)
	storetest.Run(t, db.Store(), uuid.NewString()+"-")
}

func TestUsersAndSessions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	user := &User{ID: "u-" + uuid.NewString(), DisplayName: "Tester", Email: "t@example.com", Country: "SE"}
	require.NoError(t, db.Users().Upsert(ctx, user))
	t.Cleanup(func() { db.Users().Delete(context.Background(), user.ID) })

	user.DisplayName = "Renamed"
	require.NoError(t, db.Users().Upsert(ctx, user))
	got, err := db.Users().Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.DisplayName)

	sessions := db.Sessions()
	session := &Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		AccessToken: "access",
		TokenExpiry: time.Now().Add(time.Hour),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, sessions.Create(ctx, session))

	require.NoError(t, sessions.UpdateToken(ctx, session.ID, "new-access", "refresh", time.Now().Add(2*time.Hour)))
	loaded, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)

	expired := &Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		AccessToken: "old",
		TokenExpiry: time.Now(),
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, sessions.Create(ctx, expired))
	_, err = sessions.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	require.NoError(t, sessions.Delete(ctx, session.ID))
	_, err = sessions.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, sessions.UpdateToken(ctx, session.ID, "a", "b", time.Now()), ErrNotFound)
}
