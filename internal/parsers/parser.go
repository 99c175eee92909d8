// Package parsers reads NodeSet2 XML documents into a plain document model
// that the importer turns into address space nodes.
package parsers

import "github.com/Benny93/uaspace/internal/graph"

// NodeSet is one parsed NodeSet2 document. Identifiers are kept as written:
// namespace indices are local to the document and aliases are not yet
// substituted.
type NodeSet struct {
	// NamespaceURIs is the document's namespace table. Local namespace index
	// i (i >= 1) refers to NamespaceURIs[i-1]; index 0 is the base namespace.
	NamespaceURIs []string

	// Models declares the information models defined by the document.
	Models []Model

	// Aliases maps alias names ("HasSubtype") to NodeId text ("i=45").
	Aliases map[string]string

	// Nodes in document order.
	Nodes []NodeElement
}

// OwnNamespace returns the URI of the namespace the document defines: the
// first model URI, else the first namespace URI, else "".
func (ns *NodeSet) OwnNamespace() string {
	if len(ns.Models) > 0 && ns.Models[0].ModelURI != "" {
		return ns.Models[0].ModelURI
	}
	if len(ns.NamespaceURIs) > 0 {
		return ns.NamespaceURIs[0]
	}
	return ""
}

// RequiredModels returns the URIs of all models the document depends on.
func (ns *NodeSet) RequiredModels() []string {
	var out []string
	for _, m := range ns.Models {
		for _, r := range m.RequiredModels {
			out = append(out, r.ModelURI)
		}
	}
	return out
}

// Model is a <Model> declaration.
type Model struct {
	ModelURI        string
	Version         string
	PublicationDate string
	RequiredModels  []RequiredModel
}

// RequiredModel is a <RequiredModel> dependency of a model.
type RequiredModel struct {
	ModelURI string
	Version  string
}

// NodeElement is one UA* node element.
type NodeElement struct {
	// Tag is the element name, e.g. "UAObjectType".
	Tag string

	// Class is derived from Tag.
	Class graph.NodeClass

	// NodeID, BrowseName and ParentNodeID are the raw attribute values.
	NodeID       string
	BrowseName   string
	ParentNodeID string
	SymbolicName string

	DisplayName *graph.LocalizedText
	Description *graph.LocalizedText

	// InverseName is only read for UAReferenceType elements.
	InverseName *graph.LocalizedText

	// DataType, ValueRank and ArrayDimensions are the variable attributes.
	// ValueRank is nil when the attribute is absent.
	DataType        string
	ValueRank       *int
	ArrayDimensions []uint32

	// Value is the decoded <Value>, or nil when absent or of a type the
	// reader does not decode.
	Value *Value

	// Attributes holds every other attribute. "true" and "false" become bool.
	Attributes map[string]any

	References []ReferenceElement
}

// ReferenceElement is a <Reference> child of a node element.
type ReferenceElement struct {
	ReferenceType string
	Target        string
	IsForward     bool
}

// Value is a decoded <Value> payload.
type Value struct {
	// Type is the builtin type name, e.g. "Double".
	Type string

	Scalar   any
	Elements []any
	IsArray  bool
}

// Parser defines the interface for information model document readers.
type Parser interface {
	// Parse parses a document.
	Parse(filePath string, content []byte) (*NodeSet, error)

	// Format returns the document format this parser handles.
	Format() string
}
