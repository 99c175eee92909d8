package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Benny93/uaspace/internal/graph"
)

// MemoryBackend is an in-memory implementation of Backend. Snapshots are
// stored as JSON so a loaded snapshot never aliases the saved one.
type MemoryBackend struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	index     *invertedIndex
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshots: make(map[string][]byte),
		index:     newInvertedIndex(),
	}
}

// Initialize implements Backend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = make(map[string][]byte)
	m.index = newInvertedIndex()
	return nil
}

// SaveSnapshot implements Backend.
func (m *MemoryBackend) SaveSnapshot(ctx context.Context, name string, snap *graph.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[name] = data
	return nil
}

// LoadSnapshot implements Backend.
func (m *MemoryBackend) LoadSnapshot(ctx context.Context, name string) (*graph.Snapshot, error) {
	m.mu.RLock()
	data, ok := m.snapshots[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	return &snap, nil
}

// DeleteSnapshot implements Backend.
func (m *MemoryBackend) DeleteSnapshot(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, name)
	return nil
}

// IndexNodes implements Backend.
func (m *MemoryBackend) IndexNodes(ctx context.Context, nodes []*graph.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range nodes {
		m.index.add(newIndexedNode(n))
	}
	return nil
}

// ClearIndex implements Backend.
func (m *MemoryBackend) ClearIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = newInvertedIndex()
	return nil
}

// IndexedCount implements Backend.
func (m *MemoryBackend) IndexedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.len()
}

// FTSSearch implements Backend.
func (m *MemoryBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.search(query, limit), nil
}
