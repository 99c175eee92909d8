package graph

import (
	"fmt"
	"strings"
)

// BrowseDirection selects which references of a node are followed.
type BrowseDirection int

const (
	BrowseForward BrowseDirection = iota
	BrowseInverse
	BrowseBoth
)

// ParseBrowseDirection parses "forward", "inverse" or "both".
func ParseBrowseDirection(s string) (BrowseDirection, error) {
	switch strings.ToLower(s) {
	case "", "forward":
		return BrowseForward, nil
	case "inverse":
		return BrowseInverse, nil
	case "both":
		return BrowseBoth, nil
	}
	return BrowseForward, fmt.Errorf("%w: browse direction %q", ErrParse, s)
}

// Follow returns the targets of the forward references of exactly the given
// type, in reference insertion order.
func (s *AddressSpace) Follow(id, referenceType NodeId) ([]*Node, error) {
	return s.follow(id, referenceType, true)
}

// FollowInverse returns the sources of the references of exactly the given
// type that point at id, in reference insertion order.
func (s *AddressSpace) FollowInverse(id, referenceType NodeId) ([]*Node, error) {
	return s.follow(id, referenceType, false)
}

func (s *AddressSpace) follow(id, referenceType NodeId, forward bool) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkTraversalLocked(id, referenceType); err != nil {
		return nil, err
	}

	var result []*Node
	for _, ref := range s.adjacency[id] {
		if ref.IsForward == forward && ref.ReferenceType == referenceType {
			result = append(result, s.nodes[ref.Target].Clone())
		}
	}
	return result, nil
}

// FollowAll returns every node reachable from id over forward references
// whose type is referenceType or one of its subtypes. The walk is
// breadth-first, each node is reported once in discovery order, the start
// node is not reported, and cycles terminate.
func (s *AddressSpace) FollowAll(id, referenceType NodeId) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkTraversalLocked(id, referenceType); err != nil {
		return nil, err
	}

	types := s.subtypesLocked(referenceType)
	visited := map[NodeId]bool{id: true}
	queue := []NodeId{id}
	var result []*Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ref := range s.adjacency[cur] {
			if !ref.IsForward || !types[ref.ReferenceType] || visited[ref.Target] {
				continue
			}
			visited[ref.Target] = true
			queue = append(queue, ref.Target)
			result = append(result, s.nodes[ref.Target].Clone())
		}
	}
	return result, nil
}

// Browse returns the references of id matching the direction whose type is
// referenceType (or a subtype of it when includeSubtypes is set). A null
// referenceType matches every reference.
func (s *AddressSpace) Browse(id, referenceType NodeId, direction BrowseDirection, includeSubtypes bool) ([]Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	var types map[NodeId]bool
	if !referenceType.IsNull() {
		if err := s.checkReferenceTypeLocked(referenceType); err != nil {
			return nil, err
		}
		if includeSubtypes {
			types = s.subtypesLocked(referenceType)
		} else {
			types = map[NodeId]bool{referenceType: true}
		}
	}

	var result []Reference
	for _, ref := range s.adjacency[id] {
		if direction == BrowseForward && !ref.IsForward || direction == BrowseInverse && ref.IsForward {
			continue
		}
		if types != nil && !types[ref.ReferenceType] {
			continue
		}
		result = append(result, ref)
	}
	return result, nil
}

// IsSubtypeOf reports whether typeID equals superID or is a transitive
// HasSubtype descendant of it.
func (s *AddressSpace) IsSubtypeOf(typeID, superID NodeId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subtypesLocked(superID)[typeID]
}

// subtypesLocked returns id and all of its transitive HasSubtype
// descendants. Must be called with the lock held.
func (s *AddressSpace) subtypesLocked(id NodeId) map[NodeId]bool {
	set := map[NodeId]bool{id: true}
	queue := []NodeId{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ref := range s.adjacency[cur] {
			if ref.IsForward && ref.ReferenceType == HasSubtypeID && !set[ref.Target] {
				set[ref.Target] = true
				queue = append(queue, ref.Target)
			}
		}
	}
	return set
}

func (s *AddressSpace) checkTraversalLocked(id, referenceType NodeId) error {
	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return s.checkReferenceTypeLocked(referenceType)
}

// TranslateBrowsePath resolves a '/'-separated path of browse names starting
// at start, following forward hierarchical references.
func (s *AddressSpace) TranslateBrowsePath(start NodeId, path string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[start]; !ok {
		return nil, fmt.Errorf("%w: browse path %q: start node %s", ErrNotFound, path, start)
	}
	hierarchical := s.subtypesLocked(HierarchicalReferencesID)

	cur := start
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}
		next := NullNodeId
		for _, ref := range s.adjacency[cur] {
			if ref.IsForward && hierarchical[ref.ReferenceType] && s.nodes[ref.Target].BrowseName.Name == segment {
				next = ref.Target
				break
			}
		}
		if next.IsNull() {
			return nil, fmt.Errorf("%w: browse path %q: no child %q under %s", ErrNotFound, path, segment, cur)
		}
		cur = next
	}
	return s.nodes[cur].Clone(), nil
}
