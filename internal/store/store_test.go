package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ltser-cli/internal/config"
)

func TestOpen_None(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)

	require.NoError(t, s.RecordBuild(context.Background(), &Build{Site: "x"}))
	builds, err := s.ListBuilds(context.Background(), BuildFilter{})
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	require.NoError(t, s.RecordBuild(context.Background(), &Build{Kind: KindComposite, Site: "a", Status: StatusSucceeded}))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestStamp(t *testing.T) {
	b := &Build{}
	stamp(b)
	assert.Len(t, b.ID, 36)
	assert.False(t, b.CreatedAt.IsZero())

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b2 := &Build{ID: "given", CreatedAt: fixed}
	stamp(b2)
	assert.Equal(t, "given", b2.ID)
	assert.Equal(t, fixed, b2.CreatedAt)
}

func TestBuildFilter_Limit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, BuildFilter{}.limit())
	assert.Equal(t, 5, BuildFilter{Limit: 5}.limit())
}
