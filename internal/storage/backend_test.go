package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/uaspace/internal/graph"
)

func testNodes() []*graph.Node {
	return []*graph.Node{
		{
			ID:          graph.NewNumericNodeId(1, 1000),
			Class:       graph.NodeClassObjectType,
			BrowseName:  graph.QualifiedName{Namespace: 1, Name: "PumpType"},
			Description: graph.NewLocalizedText("Centrifugal pump", "en"),
		},
		{
			ID:           graph.NewStringNodeId(1, "/Pump1"),
			Class:        graph.NodeClassObject,
			BrowseName:   graph.QualifiedName{Namespace: 1, Name: "Pump1"},
			DisplayName:  graph.NewLocalizedText("Feed Pump", ""),
			SymbolicName: "FeedPump",
		},
		{
			ID:         graph.NewNumericNodeId(1, 1001),
			Class:      graph.NodeClassVariable,
			BrowseName: graph.QualifiedName{Namespace: 1, Name: "Speed"},
		},
	}
}

func testSnapshot() *graph.Snapshot {
	nodes := testNodes()
	return &graph.Snapshot{
		Namespaces: []string{graph.BaseNamespaceURI, "http://example.org/Pumps/"},
		Aliases:    map[string]uint16{"UA": 0, "PUMP": 1},
		Nodes:      nodes,
	}
}

// runBackendContract exercises the behavior every Backend shares.
func runBackendContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("SnapshotRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SaveSnapshot(ctx, "before", testSnapshot()))

		snap, err := b.LoadSnapshot(ctx, "before")
		require.NoError(t, err)
		assert.Equal(t, []string{graph.BaseNamespaceURI, "http://example.org/Pumps/"}, snap.Namespaces)
		assert.Equal(t, uint16(1), snap.Aliases["PUMP"])
		require.Len(t, snap.Nodes, 3)
		assert.Equal(t, graph.NewStringNodeId(1, "/Pump1"), snap.Nodes[1].ID)
		assert.Equal(t, "Feed Pump", snap.Nodes[1].DisplayName.Text)
	})

	t.Run("SnapshotReplaceAndDelete", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SaveSnapshot(ctx, "s", testSnapshot()))
		require.NoError(t, b.SaveSnapshot(ctx, "s", &graph.Snapshot{Namespaces: []string{graph.BaseNamespaceURI}}))

		snap, err := b.LoadSnapshot(ctx, "s")
		require.NoError(t, err)
		assert.Empty(t, snap.Nodes)

		require.NoError(t, b.DeleteSnapshot(ctx, "s"))
		_, err = b.LoadSnapshot(ctx, "s")
		assert.ErrorIs(t, err, ErrSnapshotNotFound)

		assert.NoError(t, b.DeleteSnapshot(ctx, "never-saved"))
	})

	t.Run("LoadedSnapshotIsIndependent", func(t *testing.T) {
		b := newBackend(t)
		snap := testSnapshot()
		require.NoError(t, b.SaveSnapshot(ctx, "s", snap))
		snap.Nodes[0].BrowseName.Name = "Changed"

		loaded, err := b.LoadSnapshot(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, "PumpType", loaded.Nodes[0].BrowseName.Name)
	})

	t.Run("SearchByNameParts", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.IndexNodes(ctx, testNodes()))
		assert.Equal(t, 3, b.IndexedCount())

		results, err := b.FTSSearch(ctx, "pump", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		ids := []string{results[0].NodeID, results[1].NodeID}
		assert.ElementsMatch(t, []string{"ns=1;i=1000", "ns=1;s=/Pump1"}, ids)

		results, err = b.FTSSearch(ctx, "feed", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "1:Pump1", results[0].BrowseName)
		assert.Equal(t, "Object", results[0].Class)
		assert.Equal(t, "Feed Pump", results[0].Snippet)

		results, err = b.FTSSearch(ctx, "centrifugal", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Centrifugal pump", results[0].Snippet)
	})

	t.Run("ClearIndex", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.IndexNodes(ctx, testNodes()))
		require.NoError(t, b.ClearIndex(ctx))
		assert.Equal(t, 0, b.IndexedCount())

		results, err := b.FTSSearch(ctx, "pump", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.IndexNodes(ctx, testNodes()))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = b.FTSSearch(ctx, "speed", 5)
				_ = b.IndexNodes(ctx, testNodes()[2:])
			}()
		}
		wg.Wait()
		assert.Equal(t, 3, b.IndexedCount())
	})
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	runBackendContract(t, func(t *testing.T) Backend {
		b := NewMemoryBackend()
		require.NoError(t, b.Initialize("", false))
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestMemoryBackend_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.SaveSnapshot(ctx, "s", testSnapshot()))
	require.NoError(t, b.IndexNodes(ctx, testNodes()))

	require.NoError(t, b.Close())
	assert.Equal(t, 0, b.IndexedCount())
	_, err := b.LoadSnapshot(ctx, "s")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
