package aggregator

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, SQLite)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestNewStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewStore(nil, Dialect("oracle"))
	require.Error(t, err)
}

func TestLatestSnapshotEmpty(t *testing.T) {
	store := newSQLiteStore(t)
	stats, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{
			TotalQueries: int64(i),
			TopQueries:   []analytics.QueryCount{{Query: "cat", Count: int64(i)}},
		}))
	}

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(3), latest.TotalQueries)
	assert.Equal(t, []analytics.QueryCount{{Query: "cat", Count: 3}}, latest.TopQueries)

	list, err := store.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].TotalQueries)
	assert.Equal(t, int64(2), list[1].TotalQueries)
}

func TestListSkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{TotalQueries: 1}))
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES (?, ?)`, "{broken", time.Now())
	require.NoError(t, err)

	list, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].TotalQueries)
}

func TestPeriodicSaveWritesFinalSnapshot(t *testing.T) {
	store := newSQLiteStore(t)
	agg := analytics.NewAggregator()
	agg.Track(analytics.QueryEvent{Query: "cat", TotalHits: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := store.StartPeriodicSave(ctx, agg, time.Hour)
	cancel()
	<-done

	latest, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.TotalQueries)
}
