package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
	"github.com/justestif/spotify-stats/internal/store/sqlite"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher writes one row per call so CanSync sees the fetch.
type fakeRefresher struct {
	st  store.Store
	now time.Time
	err error

	mu    gosync.Mutex
	calls []string
}

func (f *fakeRefresher) TopTracks(ctx context.Context, userID string, rng music.TimeRange) ([]music.TrackInfo, error) {
	f.record("tracks/" + rng.String())
	if f.err != nil {
		return nil, f.err
	}
	err := f.st.ReplaceTopTracks(ctx, userID, rng, []store.TrackEntity{
		{UserID: userID, TimeRange: rng, Rank: 1, ID: "t1", Name: "One", FetchedAt: f.now},
	})
	return []music.TrackInfo{{ID: "t1"}}, err
}

func (f *fakeRefresher) TopArtists(ctx context.Context, userID string, rng music.TimeRange) ([]music.ArtistInfo, error) {
	f.record("artists/" + rng.String())
	if f.err != nil {
		return nil, f.err
	}
	return []music.ArtistInfo{{ID: "a1"}, {ID: "a2"}}, nil
}

func (f *fakeRefresher) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, store.Store, *time.Time) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := testNow
	svc := New(st, WithSyncCooldown(time.Hour), WithClock(func() time.Time { return now }))
	return svc, st, &now
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	r := &fakeRefresher{st: st, now: testNow}

	result, err := svc.SyncAll(ctx, r, "user-1", false)
	require.NoError(t, err)

	require.Len(t, result.Ranges, 3)
	for i, rng := range music.TimeRanges {
		assert.Equal(t, RangeResult{TimeRange: rng, Tracks: 1, Artists: 2}, result.Ranges[i])
	}
	assert.Len(t, r.calls, 6)
	assert.Equal(t, testNow, result.SyncedAt)
}

func TestSyncAll_Cooldown(t *testing.T) {
	ctx := context.Background()
	svc, st, now := newTestService(t)
	r := &fakeRefresher{st: st, now: testNow}

	_, err := svc.SyncAll(ctx, r, "user-1", false)
	require.NoError(t, err)

	*now = testNow.Add(30 * time.Minute)
	_, err = svc.SyncAll(ctx, r, "user-1", false)
	assert.ErrorIs(t, err, ErrSyncTooRecent)

	ok, next, err := svc.CanSync(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, next.Equal(testNow.Add(time.Hour)), "next = %v", next)

	_, err = svc.SyncAll(ctx, r, "user-1", true)
	assert.NoError(t, err, "force bypasses the cooldown")

	*now = testNow.Add(2 * time.Hour)
	ok, _, err = svc.CanSync(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = svc.CanSync(ctx, "someone-else")
	require.NoError(t, err)
	assert.True(t, ok, "a user who never synced may sync")
}

func TestSyncAll_Error(t *testing.T) {
	svc, st, _ := newTestService(t)
	r := &fakeRefresher{st: st, now: testNow, err: errors.New("rate limited")}

	_, err := svc.SyncAll(context.Background(), r, "user-1", true)
	assert.ErrorIs(t, err, r.err)
}
