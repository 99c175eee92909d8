// Package storage persists address space snapshots and serves full-text
// search over node names.
//
// It defines the Backend protocol that all storage implementations must
// satisfy, along with common types used across backends.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/Benny93/uaspace/internal/graph"
)

// ErrSnapshotNotFound is returned when no snapshot is stored under a name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SearchResult represents a search result from the storage backend.
type SearchResult struct {
	// NodeID is the canonical text of the matching node's NodeId.
	NodeID string `json:"node_id"`

	// Score is the relevance score (higher is better).
	Score float64 `json:"score"`

	// BrowseName is the qualified browse name, e.g. "1:PumpType".
	BrowseName string `json:"browse_name"`

	// Class is the node class name.
	Class string `json:"class"`

	// Snippet is the description or display name of the node.
	Snippet string `json:"snippet,omitempty"`
}

// Backend defines the interface for snapshot and search storage.
type Backend interface {
	// Initialize opens or creates the store at path. An empty path selects
	// an in-memory store.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// SaveSnapshot stores snap under name, replacing any previous one.
	SaveSnapshot(ctx context.Context, name string, snap *graph.Snapshot) error

	// LoadSnapshot returns the snapshot stored under name, or
	// ErrSnapshotNotFound.
	LoadSnapshot(ctx context.Context, name string) (*graph.Snapshot, error)

	// DeleteSnapshot removes the snapshot stored under name. Deleting a
	// missing snapshot is not an error.
	DeleteSnapshot(ctx context.Context, name string) error

	// IndexNodes adds or replaces the search entries of nodes.
	IndexNodes(ctx context.Context, nodes []*graph.Node) error

	// ClearIndex drops every search entry.
	ClearIndex(ctx context.Context) error

	// IndexedCount returns the number of indexed nodes.
	IndexedCount() int

	// FTSSearch returns the nodes matching query, best first. A limit of
	// zero or less returns every match.
	FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// indexedNode is the stored search document of one node.
type indexedNode struct {
	NodeID       string `json:"id"`
	BrowseName   string `json:"browse_name"`
	Class        string `json:"class"`
	DisplayName  string `json:"display_name,omitempty"`
	SymbolicName string `json:"symbolic_name,omitempty"`
	Description  string `json:"description,omitempty"`
}

func newIndexedNode(n *graph.Node) indexedNode {
	doc := indexedNode{
		NodeID:       n.ID.String(),
		BrowseName:   n.BrowseName.String(),
		Class:        n.Class.String(),
		SymbolicName: n.SymbolicName,
	}
	if n.DisplayName != nil {
		doc.DisplayName = n.DisplayName.Text
	}
	if n.Description != nil {
		doc.Description = n.Description.Text
	}
	return doc
}

// text returns the searchable fields joined by spaces.
func (d indexedNode) text() string {
	name := d.BrowseName
	if _, after, ok := strings.Cut(name, ":"); ok {
		name = after
	}
	return strings.Join([]string{name, d.DisplayName, d.SymbolicName, d.Description}, " ")
}

func (d indexedNode) result(score float64) SearchResult {
	snippet := d.Description
	if snippet == "" {
		snippet = d.DisplayName
	}
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return SearchResult{
		NodeID:     d.NodeID,
		Score:      score,
		BrowseName: d.BrowseName,
		Class:      d.Class,
		Snippet:    snippet,
	}
}
