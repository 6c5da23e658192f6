package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-stats/internal/store/storetest"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "stats.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStoreContract(t *testing.T) {
	s, _ := openTestStore(t)
	storetest.Run(t, s, "")
}

func TestOpen_CreatesDirectoryAndReopens(t *testing.T) {
	s, path := openTestStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	// Migration is idempotent.
	require.NoError(t, s.migrate())

	again, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestListEncoding(t *testing.T) {
	raw, err := encodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	values, err := decodeList(`["a","b, c"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b, c"}, values)

	_, err = decodeList("not json")
	assert.Error(t, err)
}
