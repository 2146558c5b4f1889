// ABOUTME: Tests for the Storage implementations
// ABOUTME: Runs the same contract against Memory and SQLite, plus SQLite persistence

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runContract(t *testing.T, s Storage) {
	t.Helper()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(TokenKey("ws-1"), "tok-a"))
	v, ok, err := s.Get(TokenKey("ws-1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-a", v)

	require.NoError(t, s.Set(TokenKey("ws-1"), "tok-b"))
	assert.Equal(t, "tok-b", Lookup(s, TokenKey("ws-1")))

	require.NoError(t, s.Delete(TokenKey("ws-1")))
	assert.Equal(t, "", Lookup(s, TokenKey("ws-1")))

	// Deleting a missing key is not an error
	require.NoError(t, s.Delete("never-set"))
}

func TestMemory_Contract(t *testing.T) {
	runContract(t, NewMemory())
}

func TestSQLite_Contract(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "widget.db"))
	require.NoError(t, err)
	defer s.Close()

	runContract(t, s)
}

func TestSQLite_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "widget.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("glance_session", `{"id":"abc"}`))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, `{"id":"abc"}`, Lookup(reopened, "glance_session"))
}

func TestSQLite_Closed(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "widget.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set("k", "v"), ErrClosed)
	assert.Equal(t, "", Lookup(s, "k"))
}

func TestLookup_NilStore(t *testing.T) {
	assert.Equal(t, "", Lookup(nil, "k"))
}
