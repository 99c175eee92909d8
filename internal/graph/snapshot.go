package graph

import (
	"fmt"
	"maps"
)

// Snapshot is a point-in-time copy of an address space. It marshals to JSON;
// values decoded from JSON are coerced back to their datatypes on Restore.
type Snapshot struct {
	Namespaces []string          `json:"namespaces"`
	Aliases    map[string]uint16 `json:"aliases"`
	Nodes      []*Node           `json:"nodes"`
	References []Reference       `json:"references"`
}

// Snapshot captures nodes, references and namespace aliases.
func (s *AddressSpace) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Namespaces: s.namespaces.URIs(),
		Aliases:    s.namespaces.Aliases(),
		Nodes:      make([]*Node, 0, len(s.order)),
		References: append([]Reference(nil), s.refOrder...),
	}
	for _, id := range s.order {
		snap.Nodes = append(snap.Nodes, s.nodes[id].Clone())
	}
	return snap
}

// Restore replaces the graph content with the snapshot.
//
// The namespace table is never shrunk: namespaces added after the snapshot
// was taken stay registered (NodeIds elsewhere may embed their indices), but
// their aliases and nodes are dropped. The snapshot's namespaces must be a
// prefix of the current table. On error the graph is left unchanged.
func (s *AddressSpace) Restore(snap *Snapshot) error {
	current := s.namespaces.URIs()
	if len(snap.Namespaces) > len(current) {
		return fmt.Errorf("%w: snapshot has %d namespaces, table has %d", ErrSchema, len(snap.Namespaces), len(current))
	}
	for i, uri := range snap.Namespaces {
		if current[i] != uri {
			return fmt.Errorf("%w: snapshot namespace %d is %q, table has %q", ErrSchema, i, uri, current[i])
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := &AddressSpace{
		namespaces: s.namespaces,
		nodes:      make(map[NodeId]*Node, len(snap.Nodes)),
		byClass:    make(map[NodeClass]int),
		symbols:    make(map[uint16]map[string]NodeId),
		adjacency:  make(map[NodeId][]Reference),
		references: make(map[Reference]struct{}, len(snap.References)),
	}
	for _, n := range snap.Nodes {
		if err := fresh.insertNodeLocked(n.Clone()); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
	}
	for _, ref := range snap.References {
		if err := fresh.addReferenceLocked(ref); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
	}
	for _, id := range fresh.order {
		va := fresh.nodes[id].Variable
		if va == nil || va.Value == nil || va.DataType.IsNull() {
			continue
		}
		coerced, err := fresh.coerceValueLocked(va.DataType, va.Value)
		if err != nil {
			return fmt.Errorf("restoring snapshot: node %s: %w", id, err)
		}
		va.Value = coerced
	}

	s.nodes = fresh.nodes
	s.order = fresh.order
	s.byClass = fresh.byClass
	s.symbols = fresh.symbols
	s.adjacency = fresh.adjacency
	s.references = fresh.references
	s.refOrder = fresh.refOrder
	s.namespaces.resetAliases(maps.Clone(snap.Aliases))
	return nil
}
