package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBadgerBackend(t *testing.T) *BadgerBackend {
	t.Helper()

	backend := NewBadgerBackend()
	require.NoError(t, backend.Initialize("", false))
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestBadgerBackend(t *testing.T) {
	t.Parallel()

	runBackendContract(t, func(t *testing.T) Backend {
		return setupTestBadgerBackend(t)
	})
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("InMemory", func(t *testing.T) {
		backend := NewBadgerBackend()
		require.NoError(t, backend.Initialize("", false))
		assert.NotNil(t, backend.db)
		assert.True(t, backend.initialized)
		require.NoError(t, backend.Close())
		assert.Nil(t, backend.db)
	})

	t.Run("RebuildsIndexOnReopen", func(t *testing.T) {
		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "badger")

		backend1 := NewBadgerBackend()
		require.NoError(t, backend1.Initialize(dbPath, false))
		require.NoError(t, backend1.IndexNodes(ctx, testNodes()))
		require.NoError(t, backend1.SaveSnapshot(ctx, "before", testSnapshot()))
		require.NoError(t, backend1.Close())

		backend2 := NewBadgerBackend()
		require.NoError(t, backend2.Initialize(dbPath, true))
		defer backend2.Close()

		assert.Equal(t, 3, backend2.IndexedCount())
		results, err := backend2.FTSSearch(ctx, "speed", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ns=1;i=1001", results[0].NodeID)

		snap, err := backend2.LoadSnapshot(ctx, "before")
		require.NoError(t, err)
		assert.Len(t, snap.Nodes, 3)

		assert.Error(t, backend2.SaveSnapshot(ctx, "after", testSnapshot()))
		assert.Error(t, backend2.IndexNodes(ctx, testNodes()))
	})

	t.Run("NotInitialized", func(t *testing.T) {
		ctx := context.Background()
		backend := NewBadgerBackend()
		assert.Error(t, backend.SaveSnapshot(ctx, "s", testSnapshot()))
		_, err := backend.LoadSnapshot(ctx, "s")
		assert.Error(t, err)
		assert.NoError(t, backend.Close())
	})
}

func TestBadgerBackend_IndexNodesHonorsContext(t *testing.T) {
	t.Parallel()

	backend := setupTestBadgerBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.IndexNodes(ctx, testNodes())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.IndexedCount())
}
