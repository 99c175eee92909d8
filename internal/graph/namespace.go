package graph

import (
	"fmt"
	"math"
	"slices"
	"sync"
)

// BaseNamespaceURI is the URI of the base protocol namespace (index 0).
const BaseNamespaceURI = "http://opcfoundation.org/UA/"

// BaseAlias is the alias bound to namespace 0.
const BaseAlias = "UA"

// NamespaceTable is the ordered registry of namespace URIs.
//
// Indices are assigned in insertion order and stay stable for the lifetime of
// the table: NodeIds embed them, so the table only ever grows. Index 0 is the
// base protocol namespace.
//
// The table also binds import aliases ("UA", "DI", ...) to indices.
type NamespaceTable struct {
	mu      sync.RWMutex
	uris    []string
	index   map[string]uint16
	aliases map[string]uint16
}

// NewNamespaceTable creates a table holding only the base namespace.
func NewNamespaceTable() *NamespaceTable {
	return &NamespaceTable{
		uris:    []string{BaseNamespaceURI},
		index:   map[string]uint16{BaseNamespaceURI: 0},
		aliases: map[string]uint16{BaseAlias: 0},
	}
}

// Add appends uri if absent and returns its index. Adding a known URI
// returns the existing index.
func (t *NamespaceTable) Add(uri string) (uint16, error) {
	if uri == "" {
		return 0, fmt.Errorf("%w: empty namespace uri", ErrSchema)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.index[uri]; ok {
		return idx, nil
	}
	if len(t.uris) > math.MaxUint16 {
		return 0, fmt.Errorf("namespace table full: cannot add %q", uri)
	}

	idx := uint16(len(t.uris))
	t.uris = append(t.uris, uri)
	t.index[uri] = idx
	return idx, nil
}

// IndexOf returns the index of uri.
func (t *NamespaceTable) IndexOf(uri string) (uint16, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.index[uri]
	if !ok {
		return 0, fmt.Errorf("%w: namespace %q", ErrNotFound, uri)
	}
	return idx, nil
}

// URI returns the URI at index.
func (t *NamespaceTable) URI(index uint16) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(index) >= len(t.uris) {
		return "", fmt.Errorf("%w: namespace index %d", ErrNotFound, index)
	}
	return t.uris[index], nil
}

// Len returns the number of namespaces.
func (t *NamespaceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uris)
}

// URIs returns a copy of the URIs in index order.
func (t *NamespaceTable) URIs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.uris)
}

// BindAlias binds alias to an existing namespace index. Rebinding an alias to
// the same index is a no-op; rebinding it elsewhere fails with ErrDuplicate.
func (t *NamespaceTable) BindAlias(alias string, index uint16) error {
	if alias == "" {
		return fmt.Errorf("%w: empty namespace alias", ErrSchema)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if int(index) >= len(t.uris) {
		return fmt.Errorf("%w: namespace index %d", ErrNotFound, index)
	}
	if existing, ok := t.aliases[alias]; ok && existing != index {
		return fmt.Errorf("%w: alias %q already bound to namespace %d", ErrDuplicate, alias, existing)
	}
	t.aliases[alias] = index
	return nil
}

// Resolve returns the namespace index bound to alias.
func (t *NamespaceTable) Resolve(alias string) (uint16, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.aliases[alias]
	if !ok {
		return 0, fmt.Errorf("%w: namespace alias %q", ErrNotFound, alias)
	}
	return idx, nil
}

// AliasesOf returns the aliases bound to index, sorted.
func (t *NamespaceTable) AliasesOf(index uint16) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for alias, idx := range t.aliases {
		if idx == index {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

// Aliases returns a copy of the alias bindings.
func (t *NamespaceTable) Aliases() map[string]uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]uint16, len(t.aliases))
	for k, v := range t.aliases {
		out[k] = v
	}
	return out
}

// resetAliases replaces the alias bindings. Bindings to indices beyond the
// table are dropped.
func (t *NamespaceTable) resetAliases(aliases map[string]uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.aliases = make(map[string]uint16, len(aliases))
	for alias, idx := range aliases {
		if int(idx) < len(t.uris) {
			t.aliases[alias] = idx
		}
	}
	t.aliases[BaseAlias] = 0
}
