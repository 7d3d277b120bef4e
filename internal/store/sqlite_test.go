package store

import (
	"context"
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

func TestNewSQLite_InvalidDSN(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestNewSQLite_WALMode(t *testing.T) {
	st := newTestSQLiteStore(t)
	var mode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_MigrateTwice(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RecordAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.RecordBuild(ctx, &Build{
		Kind: KindProvision, Site: "eisenwurzen", Status: StatusSucceeded, CreatedAt: base,
	}))
	require.NoError(t, st.RecordBuild(ctx, &Build{
		Kind: KindComposite, Site: "eisenwurzen", Zone: "AT-0", Rows: 4,
		Status: StatusSucceeded, DurationMS: 12, Footprint: []byte{1, 2, 3}, CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, st.RecordBuild(ctx, &Build{
		Kind: KindComposite, Site: "zillertal", Zone: "AT-0", Status: StatusFailed,
		Error: "overlay: boom", CreatedAt: base.Add(2 * time.Minute),
	}))

	all, err := st.ListBuilds(ctx, BuildFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "zillertal", all[0].Site)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Equal(t, "overlay: boom", all[0].Error)
	assert.Equal(t, KindProvision, all[2].Kind)
	assert.Empty(t, all[2].Zone)

	composites, err := st.ListBuilds(ctx, BuildFilter{Kind: KindComposite, Site: "eisenwurzen"})
	require.NoError(t, err)
	require.Len(t, composites, 1)
	assert.Equal(t, "AT-0", composites[0].Zone)
	assert.Equal(t, 4, composites[0].Rows)
	assert.Equal(t, int64(12), composites[0].DurationMS)
	assert.NotEmpty(t, composites[0].ID)
	assert.Nil(t, composites[0].Footprint)

	byZone, err := st.ListBuilds(ctx, BuildFilter{Zone: "AT-0", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byZone, 1)
	assert.Equal(t, "zillertal", byZone[0].Site)
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s1, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Migrate(ctx))
	require.NoError(t, s1.RecordBuild(ctx, &Build{Kind: KindComposite, Site: "a", Zone: "lau2020", Status: StatusSucceeded}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() }) //nolint:errcheck

	builds, err := s2.ListBuilds(ctx, BuildFilter{Site: "a"})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "lau2020", builds[0].Zone)
}
