package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/uaspace/internal/graph"
)

// Key prefixes for different data types
const (
	prefixSnapshot = "s:" // snapshot JSON by name
	prefixSearch   = "n:" // indexed node document by NodeId
)

// BadgerBackend is a BadgerDB-backed storage implementation. Search
// documents are persisted and the inverted index is rebuilt from them when
// the database is opened.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	readOnly    bool
	mu          sync.RWMutex
	index       *invertedIndex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{index: newInvertedIndex()}
}

// Initialize opens or creates the BadgerDB database at the given path. An
// empty path opens an in-memory database.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if path == "" {
		opts = opts.WithInMemory(true)
	} else if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	b.db = db
	b.readOnly = readOnly
	b.initialized = true

	return b.rebuildIndexFromDB()
}

// rebuildIndexFromDB rebuilds the in-memory search index from the database.
func (b *BadgerBackend) rebuildIndexFromDB() error {
	b.index = newInvertedIndex()

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSearch)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var doc indexedNode
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("decoding search document %q: %w", it.Item().Key(), err)
			}
			b.index.add(doc)
		}
		return nil
	})
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

func (b *BadgerBackend) checkWritable() error {
	if !b.initialized {
		return fmt.Errorf("badger backend not initialized")
	}
	if b.readOnly {
		return fmt.Errorf("badger backend is read-only")
	}
	return nil
}

// SaveSnapshot implements Backend.
func (b *BadgerBackend) SaveSnapshot(ctx context.Context, name string, snap *graph.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %q: %w", name, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixSnapshot+name), data)
	})
}

// LoadSnapshot implements Backend.
func (b *BadgerBackend) LoadSnapshot(ctx context.Context, name string) (*graph.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, fmt.Errorf("badger backend not initialized")
	}

	var snap graph.Snapshot
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSnapshot + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	return &snap, nil
}

// DeleteSnapshot implements Backend.
func (b *BadgerBackend) DeleteSnapshot(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixSnapshot + name))
	})
}

// IndexNodes implements Backend. Documents are written in one WriteBatch.
func (b *BadgerBackend) IndexNodes(ctx context.Context, nodes []*graph.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	docs := make([]indexedNode, 0, len(nodes))
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := newIndexedNode(n)
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling search document %s: %w", doc.NodeID, err)
		}
		if err := wb.Set([]byte(prefixSearch+doc.NodeID), data); err != nil {
			return fmt.Errorf("writing search document %s: %w", doc.NodeID, err)
		}
		docs = append(docs, doc)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing search documents: %w", err)
	}

	for _, doc := range docs {
		b.index.add(doc)
	}
	return nil
}

// ClearIndex implements Backend.
func (b *BadgerBackend) ClearIndex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkWritable(); err != nil {
		return err
	}

	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSearch)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning search documents: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("deleting search document %q: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing search deletions: %w", err)
	}

	b.index = newInvertedIndex()
	return nil
}

// IndexedCount implements Backend.
func (b *BadgerBackend) IndexedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.len()
}

// FTSSearch performs full-text search using the in-memory index.
func (b *BadgerBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.index.search(query, limit), nil
}
