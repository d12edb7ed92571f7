// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/mdconv/pkg/types"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".mdconv")
	store, err := NewStore(types.HistoryConfig{Enabled: true, Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func sampleResult(id string, started time.Time) types.BatchResult {
	return types.BatchResult{
		BatchID:   id,
		Total:     4,
		StartedAt: started,
		Elapsed:   1500 * time.Millisecond,
		Successes: []types.SuccessItem{
			{Input: "a.pdf", Output: "out/a.md", Message: "converted", Elapsed: time.Second},
			{Input: "b.docx", Output: "out/b.md", Message: "cached", Cached: true},
		},
		Errors:  []types.ErrorItem{{Input: "c.xlsx", Error: "conversion timed out after 30s"}},
		Omitted: []string{"d.csv"},
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	_, dir := testStore(t)
	assert.FileExists(t, filepath.Join(dir, dbFile))
}

func TestRecordBatchAndLookup(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordBatch(ctx, sampleResult("3f2a9c10-0000-4000-8000-000000000001", started)))

	b, items, err := store.Batch(ctx, "3f2a")
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{
		ID:        "3f2a9c10-0000-4000-8000-000000000001",
		StartedAt: started,
		Elapsed:   1500 * time.Millisecond,
		Total:     4,
		Succeeded: 2,
		Failed:    1,
		Omitted:   1,
		Cached:    1,
	}, b)

	require.Len(t, items, 4)
	assert.Equal(t, Item{Input: "a.pdf", Output: "out/a.md", Status: StatusSuccess, Message: "converted", Elapsed: time.Second}, items[0])
	assert.True(t, items[1].Cached)
	assert.Equal(t, StatusFailure, items[2].Status)
	assert.Equal(t, "conversion timed out after 30s", items[2].Message)
	assert.Equal(t, Item{Input: "d.csv", Status: StatusOmitted}, items[3])
}

func TestRecordBatchTwiceReplaces(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	res := sampleResult("batch-1", time.Now())
	require.NoError(t, store.RecordBatch(ctx, res))

	res.Omitted = nil
	res.Total = 3
	res.Cancelled = true
	require.NoError(t, store.RecordBatch(ctx, res))

	b, items, err := store.Batch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 0, b.Omitted)
	assert.True(t, b.Cancelled)
}

func TestRecordBatchRequiresID(t *testing.T) {
	store, _ := testStore(t)
	assert.Error(t, store.RecordBatch(context.Background(), types.BatchResult{}))
}

func TestList(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.RecordBatch(ctx, sampleResult(id, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestBatchLookupErrors(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordBatch(ctx, sampleResult("abc-1", time.Now())))
	require.NoError(t, store.RecordBatch(ctx, sampleResult("abc-2", time.Now())))

	_, _, err := store.Batch(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.Batch(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.Batch(ctx, "abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	b, _, err := store.Batch(ctx, "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-2", b.ID)
}

func TestPrune(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.RecordBatch(ctx, sampleResult("old", now.Add(-60*24*time.Hour))))
	require.NoError(t, store.RecordBatch(ctx, sampleResult("new", now)))

	n, err := store.Prune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)

	var orphans int
	require.NoError(t, store.db.QueryRow(`SELECT count(*) FROM items WHERE batch_id = 'old'`).Scan(&orphans))
	assert.Zero(t, orphans, "items are removed with their batch")
}
