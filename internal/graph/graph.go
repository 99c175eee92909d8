package graph

import (
	"fmt"
	"strings"
	"sync"
)

// AddressSpace is an in-memory directed graph of typed nodes connected by
// typed references.
//
// Nodes are keyed by NodeId. Every reference is recorded on both endpoints,
// tagged with its direction, so inverse traversal costs O(adjacency) instead
// of a scan. Adjacency lists keep insertion order.
//
// A single RWMutex serializes mutations; reads run concurrently with each
// other and observe either the state before or after a mutation. Nodes are
// copied on the way in and out, so callers never share memory with the graph.
type AddressSpace struct {
	mu         sync.RWMutex
	namespaces *NamespaceTable
	nodes      map[NodeId]*Node
	order      []NodeId

	// Secondary indexes — kept in sync by the insert helpers.
	byClass    map[NodeClass]int
	symbols    map[uint16]map[string]NodeId
	adjacency  map[NodeId][]Reference
	references map[Reference]struct{}
	refOrder   []Reference
}

// NewAddressSpace creates an empty address space with a namespace table
// holding the base namespace.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		namespaces: NewNamespaceTable(),
		nodes:      make(map[NodeId]*Node),
		byClass:    make(map[NodeClass]int),
		symbols:    make(map[uint16]map[string]NodeId),
		adjacency:  make(map[NodeId][]Reference),
		references: make(map[Reference]struct{}),
	}
}

// Namespaces returns the namespace table.
func (s *AddressSpace) Namespaces() *NamespaceTable {
	return s.namespaces
}

// AddNamespace appends uri to the namespace table if absent and returns its
// index.
func (s *AddressSpace) AddNamespace(uri string) (uint16, error) {
	return s.namespaces.Add(uri)
}

// NodeCount returns the number of nodes.
func (s *AddressSpace) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// ReferenceCount returns the number of distinct references.
func (s *AddressSpace) ReferenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.references)
}

// CountNodesByClass returns the number of nodes of the given class.
func (s *AddressSpace) CountNodesByClass(class NodeClass) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byClass[class]
}

// ClassCounts returns node counts per class, in class order.
func (s *AddressSpace) ClassCounts() []ClassCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClassCount, 0, len(s.byClass))
	for _, c := range sortedClasses(s.byClass) {
		if s.byClass[c] > 0 {
			out = append(out, ClassCount{Class: c, Count: s.byClass[c]})
		}
	}
	return out
}

// ClassCount pairs a node class with a node count.
type ClassCount struct {
	Class NodeClass
	Count int
}

// IterNodes returns a channel that yields copies of all nodes in insertion
// order.
func (s *AddressSpace) IterNodes() <-chan *Node {
	s.mu.RLock()
	ch := make(chan *Node, len(s.order))
	for _, id := range s.order {
		ch <- s.nodes[id].Clone()
	}
	close(ch)
	s.mu.RUnlock()
	return ch
}

// NodesByClass returns copies of all nodes of the given class in insertion
// order.
func (s *AddressSpace) NodesByClass(class NodeClass) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Node
	for _, id := range s.order {
		if n := s.nodes[id]; n.Class == class {
			result = append(result, n.Clone())
		}
	}
	return result
}

// InsertNode adds a node. It fails with ErrDuplicate if the NodeId is
// already present and with ErrSchema if the node is malformed.
func (s *AddressSpace) InsertNode(node *Node) (NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertNodeLocked(node.Clone()); err != nil {
		return NullNodeId, err
	}
	return node.ID, nil
}

// insertNodeLocked stores n without copying it.
// Must be called with the write lock held.
func (s *AddressSpace) insertNodeLocked(n *Node) error {
	if n.ID.IsNull() {
		return fmt.Errorf("%w: node without NodeId", ErrSchema)
	}
	if !n.Class.Valid() {
		return fmt.Errorf("%w: node %s has no node class", ErrSchema, n.ID)
	}
	if n.BrowseName.Name == "" {
		return fmt.Errorf("%w: node %s has no BrowseName", ErrSchema, n.ID)
	}
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("%w: node %s", ErrDuplicate, n.ID)
	}
	if n.Class == NodeClassVariable || n.Class == NodeClassVariableType {
		if n.Variable == nil {
			n.Variable = newVariableAttributes()
		}
	} else {
		n.Variable = nil
	}
	if n.Class != NodeClassReferenceType {
		n.InverseName = nil
	}

	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	s.byClass[n.Class]++
	s.registerSymbolLocked(n)
	return nil
}

// registerSymbolLocked indexes n under its symbol within its namespace. Type
// nodes take precedence over instances; otherwise the first node wins.
func (s *AddressSpace) registerSymbolLocked(n *Node) {
	ns := n.ID.Namespace()
	if s.symbols[ns] == nil {
		s.symbols[ns] = make(map[string]NodeId)
	}
	sym := n.Symbol()
	if existing, ok := s.symbols[ns][sym]; ok {
		if prev := s.nodes[existing]; prev.Class.IsType() || !n.Class.IsType() {
			return
		}
	}
	s.symbols[ns][sym] = n.ID
}

// GetNode returns a copy of the node with the given id.
func (s *AddressSpace) GetNode(id NodeId) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

// Has reports whether a node with the given id exists.
func (s *AddressSpace) Has(id NodeId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Get resolves ref and returns a copy of the node. ref may be a NodeId
// ("ns=1;i=5", "i=45"), a browse path rooted at the Objects folder
// ("/MatrixTest/Matrix_2x2"), or a symbol accepted by Lookup.
func (s *AddressSpace) Get(ref string) (*Node, error) {
	if id, err := ParseNodeId(ref); err == nil {
		return s.GetNode(id)
	}
	if strings.HasPrefix(ref, "/") {
		return s.TranslateBrowsePath(ObjectsFolderID, ref)
	}
	return s.Lookup(ref)
}

// Lookup resolves a symbol: "<alias>:<name>" or a bare name in the base
// namespace, e.g. "HasSubtype" or "DI:ComponentType".
func (s *AddressSpace) Lookup(symbol string) (*Node, error) {
	alias, name, found := strings.Cut(symbol, ":")
	if !found {
		alias, name = BaseAlias, symbol
	}
	ns, err := s.namespaces.Resolve(alias)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.symbols[ns][name]
	if !ok {
		return nil, fmt.Errorf("%w: symbol %q", ErrNotFound, symbol)
	}
	return s.nodes[id].Clone(), nil
}

// AddReference records the reference source→target of the given type, or
// target→source when isForward is false. Both endpoints must exist
// (ErrNotFound) and referenceType must be a ReferenceType node (ErrSchema).
// Adding an existing reference again is a no-op.
func (s *AddressSpace) AddReference(source, target, referenceType NodeId, isForward bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addReferenceLocked(Reference{
		Source:        source,
		Target:        target,
		ReferenceType: referenceType,
		IsForward:     isForward,
	})
}

// addReferenceLocked validates and stores ref.
// Must be called with the write lock held.
func (s *AddressSpace) addReferenceLocked(ref Reference) error {
	if _, ok := s.nodes[ref.Source]; !ok {
		return fmt.Errorf("%w: reference source %s", ErrNotFound, ref.Source)
	}
	if _, ok := s.nodes[ref.Target]; !ok {
		return fmt.Errorf("%w: reference target %s", ErrNotFound, ref.Target)
	}
	if err := s.checkReferenceTypeLocked(ref.ReferenceType); err != nil {
		return err
	}

	fwd := ref.forward()
	if _, ok := s.references[fwd]; ok {
		return nil
	}
	s.references[fwd] = struct{}{}
	s.refOrder = append(s.refOrder, fwd)
	// A self reference is recorded twice on the same node, once per direction.
	s.adjacency[fwd.Source] = append(s.adjacency[fwd.Source], fwd)
	s.adjacency[fwd.Target] = append(s.adjacency[fwd.Target], fwd.inverse())
	return nil
}

func (s *AddressSpace) checkReferenceTypeLocked(id NodeId) error {
	rt, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: reference type %s", ErrNotFound, id)
	}
	if rt.Class != NodeClassReferenceType {
		return fmt.Errorf("%w: %s (%s) is a %s, not a ReferenceType", ErrSchema, id, rt.BrowseName.Name, rt.Class)
	}
	return nil
}

// References returns the references of a node as seen from that node, in
// insertion order. Inverse references have IsForward false and Source set to
// id.
func (s *AddressSpace) References(id NodeId) ([]Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return append([]Reference(nil), s.adjacency[id]...), nil
}

// Stats returns a summary of graph size.
func (s *AddressSpace) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"nodes":      len(s.nodes),
		"references": len(s.references),
		"namespaces": s.namespaces.Len(),
	}
}
