package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ListEncoding(t *testing.T) {
	enc, err := encodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", enc)

	enc, err = encodeList([]string{"a", "b"})
	require.NoError(t, err)

	var out []string
	require.NoError(t, decodeList(enc, &out))
	assert.Equal(t, []string{"a", "b"}, out)

	out = nil
	require.NoError(t, decodeList("", &out))
	assert.Nil(t, out)

	assert.Error(t, decodeList("{not json", &out))
}

func TestSQLite_NullTime(t *testing.T) {
	assert.Nil(t, nullTime(sql.NullTime{}))

	now := time.Now().UTC()
	got := nullTime(sql.NullTime{Time: now, Valid: true})
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))
}

func TestSQLite_UpsertProfilesEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.UpsertProfiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_DeleteReportsBeforeNoStatuses(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.DeleteReportsBefore(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
