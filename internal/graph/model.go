// Package graph provides the address space data model for uaspace.
//
// It defines the identifier value types (NodeId, QualifiedName,
// LocalizedText), the closed set of node classes, the Node and Reference
// entities, and the AddressSpace: a namespace-partitioned directed graph of
// typed nodes connected by typed references.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// NodeClass is the class of a node. The values mirror the protocol's
// historical bit values, but a node has exactly one class; they are never
// combined.
type NodeClass uint8

const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

var nodeClassNames = map[NodeClass]string{
	NodeClassObject:        "Object",
	NodeClassVariable:      "Variable",
	NodeClassMethod:        "Method",
	NodeClassObjectType:    "ObjectType",
	NodeClassVariableType:  "VariableType",
	NodeClassReferenceType: "ReferenceType",
	NodeClassDataType:      "DataType",
	NodeClassView:          "View",
}

// NodeClasses lists every valid node class in declaration order.
var NodeClasses = []NodeClass{
	NodeClassObject,
	NodeClassVariable,
	NodeClassMethod,
	NodeClassObjectType,
	NodeClassVariableType,
	NodeClassReferenceType,
	NodeClassDataType,
	NodeClassView,
}

// String returns the class name, e.g. "ObjectType".
func (c NodeClass) String() string {
	if name, ok := nodeClassNames[c]; ok {
		return name
	}
	return "Unspecified"
}

// Valid reports whether c is one of the eight node classes.
func (c NodeClass) Valid() bool {
	_, ok := nodeClassNames[c]
	return ok
}

// IsType reports whether c is one of the type classes.
func (c NodeClass) IsType() bool {
	switch c {
	case NodeClassObjectType, NodeClassVariableType, NodeClassReferenceType, NodeClassDataType:
		return true
	}
	return false
}

// ParseNodeClass maps an element tag name ("UAObjectType") or a bare class
// name ("ObjectType") to a NodeClass.
func ParseNodeClass(tag string) (NodeClass, error) {
	name := strings.TrimPrefix(tag, "UA")
	for class, n := range nodeClassNames {
		if n == name {
			return class, nil
		}
	}
	return NodeClassUnspecified, fmt.Errorf("%w: unrecognized node class %q", ErrSchema, tag)
}

// MarshalText implements encoding.TextMarshaler.
func (c NodeClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *NodeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Node is a node of the address space.
//
// The AddressSpace owns its nodes. Every Node handed out by the address space
// is a copy; mutate nodes through AddressSpace methods and refer to them by
// NodeId.
type Node struct {
	// ID is the unique identifier of the node.
	ID NodeId `json:"id"`

	// Class is the node class.
	Class NodeClass `json:"class"`

	// BrowseName is the namespace-qualified browse name.
	BrowseName QualifiedName `json:"browse_name"`

	// DisplayName and Description are optional.
	DisplayName *LocalizedText `json:"display_name,omitempty"`
	Description *LocalizedText `json:"description,omitempty"`

	// SymbolicName is the registry key of the node, if declared.
	SymbolicName string `json:"symbolic_name,omitempty"`

	// ParentID is the declared parent (ParentNodeId), or NullNodeId.
	ParentID NodeId `json:"parent_id"`

	// InverseName is set on ReferenceType nodes only.
	InverseName *LocalizedText `json:"inverse_name,omitempty"`

	// Variable holds the value attributes of Variable and VariableType nodes.
	Variable *VariableAttributes `json:"variable,omitempty"`

	// Extras holds the remaining declared attributes. Values are string or bool.
	Extras map[string]any `json:"extras,omitempty"`
}

// Name returns the browse name without namespace.
func (n *Node) Name() string {
	return n.BrowseName.Name
}

// Symbol returns the registry key of the node: the symbolic name when
// declared, otherwise the browse name.
func (n *Node) Symbol() string {
	if n.SymbolicName != "" {
		return n.SymbolicName
	}
	return n.BrowseName.Name
}

// Extra returns the named extra attribute.
func (n *Node) Extra(name string) (any, bool) {
	v, ok := n.Extras[name]
	return v, ok
}

// BoolExtra returns the named extra attribute if it is a bool.
func (n *Node) BoolExtra(name string) (bool, bool) {
	v, ok := n.Extras[name].(bool)
	return v, ok
}

// StringExtra returns the named extra attribute if it is a string.
func (n *Node) StringExtra(name string) (string, bool) {
	v, ok := n.Extras[name].(string)
	return v, ok
}

// String returns the canonical NodeId of the node.
func (n *Node) String() string {
	return n.ID.String()
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.DisplayName != nil {
		dn := *n.DisplayName
		c.DisplayName = &dn
	}
	if n.Description != nil {
		d := *n.Description
		c.Description = &d
	}
	if n.InverseName != nil {
		in := *n.InverseName
		c.InverseName = &in
	}
	if n.Variable != nil {
		c.Variable = n.Variable.Clone()
	}
	if n.Extras != nil {
		c.Extras = maps.Clone(n.Extras)
	}
	return &c
}

// Reference is a directed, typed edge between two nodes.
//
// The address space keeps every reference on both endpoints. Seen from the
// source it is reported with IsForward set; seen from the target the
// endpoints are swapped and IsForward is false.
type Reference struct {
	Source        NodeId `json:"source"`
	Target        NodeId `json:"target"`
	ReferenceType NodeId `json:"reference_type"`
	IsForward     bool   `json:"is_forward"`
}

// forward returns the reference in source→target orientation.
func (r Reference) forward() Reference {
	if r.IsForward {
		return r
	}
	return Reference{Source: r.Target, Target: r.Source, ReferenceType: r.ReferenceType, IsForward: true}
}

// inverse returns the reference as seen from its target.
func (r Reference) inverse() Reference {
	return Reference{Source: r.Target, Target: r.Source, ReferenceType: r.ReferenceType, IsForward: !r.IsForward}
}

// String renders the reference for diagnostics.
func (r Reference) String() string {
	arrow := "->"
	if !r.IsForward {
		arrow = "<-"
	}
	return fmt.Sprintf("%s %s[%s] %s", r.Source, arrow, r.ReferenceType, r.Target)
}

// sortedClasses returns the classes present in counts in declaration order.
func sortedClasses(counts map[NodeClass]int) []NodeClass {
	classes := make([]NodeClass, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	slices.Sort(classes)
	return classes
}
