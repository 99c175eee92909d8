package graph

import (
	"fmt"
	"strings"
)

// AddObjectType creates an ObjectType node named name with the given id and
// links it from supertype with referenceType (normally HasSubtype).
func (s *AddressSpace) AddObjectType(name string, id, supertype, referenceType NodeId) (*Node, error) {
	return s.addSubtype(NodeClassObjectType, name, id, supertype, referenceType)
}

// AddDataType creates a DataType node under supertype.
func (s *AddressSpace) AddDataType(name string, id, supertype, referenceType NodeId) (*Node, error) {
	return s.addSubtype(NodeClassDataType, name, id, supertype, referenceType)
}

// AddVariableType creates a VariableType node under supertype.
func (s *AddressSpace) AddVariableType(name string, id, supertype, referenceType NodeId) (*Node, error) {
	return s.addSubtype(NodeClassVariableType, name, id, supertype, referenceType)
}

// AddReferenceType creates a ReferenceType node under supertype.
func (s *AddressSpace) AddReferenceType(name string, id, supertype, referenceType NodeId, inverseName string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.addLinkedLocked(&Node{
		ID:          id,
		Class:       NodeClassReferenceType,
		BrowseName:  QualifiedName{Namespace: id.Namespace(), Name: name},
		DisplayName: NewLocalizedText(name, ""),
		InverseName: NewLocalizedText(inverseName, ""),
	}, supertype, referenceType)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (s *AddressSpace) addSubtype(class NodeClass, name string, id, supertype, referenceType NodeId) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.addLinkedLocked(&Node{
		ID:          id,
		Class:       class,
		BrowseName:  QualifiedName{Namespace: id.Namespace(), Name: name},
		DisplayName: NewLocalizedText(name, ""),
	}, supertype, referenceType)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// AddObject creates an Object node named name, links it from parent with
// referenceType and, unless typeDefinition is null, adds a HasTypeDefinition
// reference to its type.
func (s *AddressSpace) AddObject(name string, id, parent, referenceType, typeDefinition NodeId) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !typeDefinition.IsNull() {
		if err := s.requireClassLocked(typeDefinition, NodeClassObjectType); err != nil {
			return nil, err
		}
	}
	n, err := s.addLinkedLocked(&Node{
		ID:          id,
		Class:       NodeClassObject,
		BrowseName:  QualifiedName{Namespace: id.Namespace(), Name: name},
		DisplayName: NewLocalizedText(name, ""),
	}, parent, referenceType)
	if err != nil {
		return nil, err
	}
	if !typeDefinition.IsNull() {
		if err := s.addReferenceLocked(Reference{Source: id, Target: typeDefinition, ReferenceType: HasTypeDefinitionID, IsForward: true}); err != nil {
			return nil, err
		}
	}
	return n.Clone(), nil
}

// AddVariable declares a scalar Variable child named name under parent,
// linked with HasComponent. On type nodes the variable acts as a template
// for Manifest and is marked Mandatory when that modelling rule exists.
//
// The child gets the string identifier "<parent path>/<name>" in the
// parent's namespace.
func (s *AddressSpace) AddVariable(parent NodeId, name string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.nodes[parent]
	if !ok {
		return nil, fmt.Errorf("%w: parent %s", ErrNotFound, parent)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: variable without name", ErrSchema)
	}

	id := NewStringNodeId(parent.Namespace(), s.pathOfLocked(p)+"/"+name)
	n, err := s.addLinkedLocked(&Node{
		ID:          id,
		Class:       NodeClassVariable,
		BrowseName:  QualifiedName{Namespace: parent.Namespace(), Name: name},
		DisplayName: NewLocalizedText(name, ""),
		ParentID:    parent,
	}, parent, HasComponentID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.nodes[BaseDataVariableTypeID]; ok {
		if err := s.addReferenceLocked(Reference{Source: id, Target: BaseDataVariableTypeID, ReferenceType: HasTypeDefinitionID, IsForward: true}); err != nil {
			return nil, err
		}
	}
	if _, ok := s.nodes[ModellingRuleMandatory]; ok && p.Class.IsType() {
		if err := s.addReferenceLocked(Reference{Source: id, Target: ModellingRuleMandatory, ReferenceType: HasModellingRuleID, IsForward: true}); err != nil {
			return nil, err
		}
	}
	return n.Clone(), nil
}

// Manifest instantiates typeID as an Object named name organized under
// container, cloning the type's own Variable components one level deep.
//
// Instance identifiers are string paths in the type's namespace: the object
// is "<container path>/<name>" and each variable "<container path>/<name>/<child>",
// so "/MatrixTest/Matrix_2x2" resolves both as a browse path from the
// Objects folder and as a NodeId identifier.
func (s *AddressSpace) Manifest(container NodeId, name string, typeID NodeId) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.nodes[container]
	if !ok {
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, container)
	}
	if err := s.requireClassLocked(typeID, NodeClassObjectType); err != nil {
		return nil, err
	}

	ns := typeID.Namespace()
	path := s.pathOfLocked(c) + "/" + name
	objectID := NewStringNodeId(ns, path)
	if _, exists := s.nodes[objectID]; exists {
		return nil, fmt.Errorf("%w: instance %s", ErrDuplicate, objectID)
	}

	// Collect templates before mutating so a failure leaves nothing behind
	// that a duplicate check would have caught.
	aggregates := s.subtypesLocked(AggregatesID)
	var templates []Reference
	for _, ref := range s.adjacency[typeID] {
		if ref.IsForward && aggregates[ref.ReferenceType] && s.nodes[ref.Target].Class == NodeClassVariable {
			childID := NewStringNodeId(ns, path+"/"+s.nodes[ref.Target].BrowseName.Name)
			if _, exists := s.nodes[childID]; exists {
				return nil, fmt.Errorf("%w: instance %s", ErrDuplicate, childID)
			}
			templates = append(templates, ref)
		}
	}

	obj, err := s.addLinkedLocked(&Node{
		ID:          objectID,
		Class:       NodeClassObject,
		BrowseName:  QualifiedName{Namespace: ns, Name: name},
		DisplayName: NewLocalizedText(name, ""),
		ParentID:    container,
	}, container, OrganizesID)
	if err != nil {
		return nil, err
	}
	if err := s.addReferenceLocked(Reference{Source: objectID, Target: typeID, ReferenceType: HasTypeDefinitionID, IsForward: true}); err != nil {
		return nil, err
	}

	for _, ref := range templates {
		tmpl := s.nodes[ref.Target]
		child := &Node{
			ID:          NewStringNodeId(ns, path+"/"+tmpl.BrowseName.Name),
			Class:       NodeClassVariable,
			BrowseName:  tmpl.BrowseName,
			DisplayName: tmpl.DisplayName,
			Description: tmpl.Description,
			ParentID:    objectID,
			Variable:    tmpl.Variable.Clone(),
		}
		if _, err := s.addLinkedLocked(child.Clone(), objectID, ref.ReferenceType); err != nil {
			return nil, err
		}
		for _, tref := range s.adjacency[tmpl.ID] {
			if tref.IsForward && tref.ReferenceType == HasTypeDefinitionID {
				if err := s.addReferenceLocked(Reference{Source: child.ID, Target: tref.Target, ReferenceType: HasTypeDefinitionID, IsForward: true}); err != nil {
					return nil, err
				}
			}
		}
	}
	return obj.Clone(), nil
}

// addLinkedLocked validates the link, inserts n and links it from parent.
// Must be called with the write lock held.
func (s *AddressSpace) addLinkedLocked(n *Node, parent, referenceType NodeId) (*Node, error) {
	if _, ok := s.nodes[parent]; !ok {
		return nil, fmt.Errorf("%w: %s %q: parent %s", ErrNotFound, n.Class, n.BrowseName.Name, parent)
	}
	if err := s.checkReferenceTypeLocked(referenceType); err != nil {
		return nil, err
	}
	if err := s.insertNodeLocked(n); err != nil {
		return nil, err
	}
	if err := s.addReferenceLocked(Reference{Source: parent, Target: n.ID, ReferenceType: referenceType, IsForward: true}); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *AddressSpace) requireClassLocked(id NodeId, class NodeClass) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, class, id)
	}
	if n.Class != class {
		return fmt.Errorf("%w: %s (%s) is a %s, not a %s", ErrSchema, id, n.BrowseName.Name, n.Class, class)
	}
	return nil
}

// pathOfLocked returns the path prefix of children created under n: empty
// for the Objects folder, the identifier itself for path-style string ids,
// and "/<browse name>" otherwise.
func (s *AddressSpace) pathOfLocked(n *Node) string {
	switch {
	case n.ID == ObjectsFolderID:
		return ""
	case n.ID.Type() == IdentifierString && strings.HasPrefix(n.ID.Identifier(), "/"):
		return n.ID.Identifier()
	default:
		return "/" + n.BrowseName.Name
	}
}
