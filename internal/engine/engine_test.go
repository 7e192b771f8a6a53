package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/store"
)

const triangle = "3 3\n0 1\n1 2\n0 2\n"

func newEngine(t *testing.T, withStore bool) (*Engine, *store.Store) {
	t.Helper()
	var s *store.Store
	var rs ResultStore
	if withStore {
		var err error
		s, err = store.Open(store.Config{Path: filepath.Join(t.TempDir(), "engine.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		rs = s
	}
	e, err := New(Config{Counter: orca.CounterConfig{Workers: 2}, CacheSize: 4}, rs)
	require.NoError(t, err)
	return e, s
}

func TestCountStringCachesInMemory(t *testing.T) {
	e, _ := newEngine(t, false)
	ctx := context.Background()

	first, err := e.CountString(ctx, "node", 4, triangle)
	require.NoError(t, err)
	second, err := e.CountString(ctx, "node", 4, triangle)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Computed)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 1, stats.CacheEntries)
}

func TestCountStringMatchesCounter(t *testing.T) {
	e, _ := newEngine(t, false)
	want, err := orca.NewCounter(orca.CounterConfig{Workers: 1}).CountString(context.Background(), "edge", 4, triangle)
	require.NoError(t, err)

	got, err := e.CountString(context.Background(), "EDGE", 4, triangle)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCountStringUsesStore(t *testing.T) {
	e, s := newEngine(t, true)
	ctx := context.Background()

	out, err := e.CountString(ctx, "node", 4, triangle)
	require.NoError(t, err)

	rec, err := s.GetCount(ctx, Key(orca.TaskNode, 4, triangle))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, out, rec.Output)
	assert.Equal(t, 3, rec.Nodes)
	assert.Equal(t, 3, rec.Edges)

	e.Purge()
	again, err := e.CountString(ctx, "node", 4, triangle)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, int64(1), e.Stats().StoreHits)
	assert.Equal(t, int64(1), e.Stats().Computed)
}

func TestCountStringErrorsAreNotCached(t *testing.T) {
	e, _ := newEngine(t, false)
	ctx := context.Background()

	_, err := e.CountString(ctx, "node", 4, "2 1\n0 0\n")
	require.Error(t, err)
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))

	_, err = e.CountString(ctx, "node", 3, triangle)
	assert.Equal(t, orca.KindUnsupported, orca.KindOf(err))

	_, err = e.CountString(ctx, "vertex", 4, triangle)
	assert.Equal(t, orca.KindUnsupported, orca.KindOf(err))

	assert.Equal(t, 0, e.Stats().CacheEntries)
	assert.Equal(t, int64(3), e.Stats().Failed)
}

func TestKeyDistinguishesInputs(t *testing.T) {
	assert.NotEqual(t, Key(orca.TaskNode, 4, triangle), Key(orca.TaskEdge, 4, triangle))
	assert.NotEqual(t, Key(orca.TaskNode, 4, triangle), Key(orca.TaskNode, 5, triangle))
	assert.Equal(t, Key(orca.TaskNode, 4, triangle), Key(orca.TaskNode, 4, triangle))
}
