package parsers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Benny93/uaspace/internal/graph"
)

// NodeSetParser reads NodeSet2 XML documents.
type NodeSetParser struct{}

// NewNodeSetParser creates a new NodeSet2 parser.
func NewNodeSetParser() *NodeSetParser {
	return &NodeSetParser{}
}

// Format returns the document format this parser handles.
func (p *NodeSetParser) Format() string {
	return "nodeset2"
}

// ParseFile reads and parses the document at path.
func (p *NodeSetParser) ParseFile(path string) (*NodeSet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading nodeset: %w", err)
	}
	return p.Parse(path, content)
}

type xmlNodeSet struct {
	XMLName       xml.Name   `xml:"UANodeSet"`
	NamespaceURIs []string   `xml:"NamespaceUris>Uri"`
	Models        []xmlModel `xml:"Models>Model"`
	Aliases       []xmlAlias `xml:"Aliases>Alias"`
	Elements      []xmlNode  `xml:",any"`
}

type xmlModel struct {
	ModelURI        string             `xml:"ModelUri,attr"`
	Version         string             `xml:"Version,attr"`
	PublicationDate string             `xml:"PublicationDate,attr"`
	RequiredModels  []xmlRequiredModel `xml:"RequiredModel"`
}

type xmlRequiredModel struct {
	ModelURI string `xml:"ModelUri,attr"`
	Version  string `xml:"Version,attr"`
}

type xmlAlias struct {
	Name   string `xml:"Alias,attr"`
	NodeID string `xml:",chardata"`
}

type xmlNode struct {
	XMLName     xml.Name
	Attrs       []xml.Attr     `xml:",any,attr"`
	DisplayName []xmlLocalized `xml:"DisplayName"`
	Description []xmlLocalized `xml:"Description"`
	InverseName []xmlLocalized `xml:"InverseName"`
	References  []xmlReference `xml:"References>Reference"`
	Value       *xmlElement    `xml:"Value"`
}

type xmlLocalized struct {
	Locale string `xml:"Locale,attr"`
	Text   string `xml:",chardata"`
}

type xmlReference struct {
	ReferenceType string `xml:"ReferenceType,attr"`
	IsForward     string `xml:"IsForward,attr"`
	Target        string `xml:",chardata"`
}

// xmlElement is a generic element, used for <Value> payloads.
type xmlElement struct {
	XMLName  xml.Name
	Text     string       `xml:",chardata"`
	Children []xmlElement `xml:",any"`
}

func (e *xmlElement) child(name string) *xmlElement {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == name {
			return &e.Children[i]
		}
	}
	return nil
}

func (e *xmlElement) childText(name string) string {
	if c := e.child(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// Parse parses a NodeSet2 document. Top-level elements whose name does not
// start with "UA" (Extensions, LastModified, ...) are metadata and skipped.
func (p *NodeSetParser) Parse(filePath string, content []byte) (*NodeSet, error) {
	var doc xmlNodeSet
	dec := xml.NewDecoder(bytes.NewReader(content))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed nodeset xml: %v", graph.ErrParse, filePath, err)
	}

	result := &NodeSet{
		NamespaceURIs: make([]string, 0, len(doc.NamespaceURIs)),
		Aliases:       make(map[string]string, len(doc.Aliases)),
		Nodes:         make([]NodeElement, 0, len(doc.Elements)),
	}
	for _, uri := range doc.NamespaceURIs {
		result.NamespaceURIs = append(result.NamespaceURIs, strings.TrimSpace(uri))
	}
	for _, m := range doc.Models {
		model := Model{ModelURI: m.ModelURI, Version: m.Version, PublicationDate: m.PublicationDate}
		for _, r := range m.RequiredModels {
			model.RequiredModels = append(model.RequiredModels, RequiredModel{ModelURI: r.ModelURI, Version: r.Version})
		}
		result.Models = append(result.Models, model)
	}
	for _, a := range doc.Aliases {
		result.Aliases[a.Name] = strings.TrimSpace(a.NodeID)
	}

	for i := range doc.Elements {
		el := &doc.Elements[i]
		if !strings.HasPrefix(el.XMLName.Local, "UA") {
			continue
		}
		node, err := parseNode(el)
		if err != nil {
			return nil, fmt.Errorf("%s: element %d (%s): %w", filePath, i+1, el.XMLName.Local, err)
		}
		result.Nodes = append(result.Nodes, node)
	}

	return result, nil
}

func parseNode(el *xmlNode) (NodeElement, error) {
	class, err := graph.ParseNodeClass(el.XMLName.Local)
	if err != nil {
		return NodeElement{}, err
	}

	node := NodeElement{
		Tag:        el.XMLName.Local,
		Class:      class,
		Attributes: make(map[string]any),
	}

	for _, attr := range el.Attrs {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		value := strings.TrimSpace(attr.Value)
		switch attr.Name.Local {
		case "NodeId":
			node.NodeID = value
		case "BrowseName":
			node.BrowseName = value
		case "ParentNodeId":
			node.ParentNodeID = value
		case "SymbolicName":
			node.SymbolicName = value
		case "DataType":
			node.DataType = value
		case "ValueRank":
			rank, err := strconv.Atoi(value)
			if err != nil {
				return NodeElement{}, fmt.Errorf("%w: ValueRank %q", graph.ErrParse, value)
			}
			node.ValueRank = &rank
		case "ArrayDimensions":
			dims, err := parseDimensions(value)
			if err != nil {
				return NodeElement{}, err
			}
			node.ArrayDimensions = dims
		default:
			node.Attributes[attr.Name.Local] = coerceAttribute(value)
		}
	}

	if node.NodeID == "" {
		return NodeElement{}, fmt.Errorf("%w: missing NodeId attribute", graph.ErrSchema)
	}
	if node.BrowseName == "" {
		return NodeElement{}, fmt.Errorf("%w: node %s: missing BrowseName attribute", graph.ErrSchema, node.NodeID)
	}

	node.DisplayName = firstLocalized(el.DisplayName)
	node.Description = firstLocalized(el.Description)
	if class == graph.NodeClassReferenceType {
		node.InverseName = firstLocalized(el.InverseName)
	}

	for _, ref := range el.References {
		if ref.ReferenceType == "" {
			return NodeElement{}, fmt.Errorf("%w: node %s: reference without ReferenceType", graph.ErrSchema, node.NodeID)
		}
		node.References = append(node.References, ReferenceElement{
			ReferenceType: strings.TrimSpace(ref.ReferenceType),
			Target:        strings.TrimSpace(ref.Target),
			IsForward:     !strings.EqualFold(strings.TrimSpace(ref.IsForward), "false"),
		})
	}

	if el.Value != nil {
		v, err := decodeValue(el.Value)
		if err != nil {
			return NodeElement{}, fmt.Errorf("node %s: %w", node.NodeID, err)
		}
		node.Value = v
	}

	return node, nil
}

func coerceAttribute(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

func parseDimensions(text string) ([]uint32, error) {
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	dims := make([]uint32, 0, len(parts))
	for _, part := range parts {
		d, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: ArrayDimensions %q", graph.ErrParse, text)
		}
		dims = append(dims, uint32(d))
	}
	return dims, nil
}

func firstLocalized(texts []xmlLocalized) *graph.LocalizedText {
	if len(texts) == 0 {
		return nil
	}
	return graph.ParseLocalizedText(texts[0].Locale, strings.TrimSpace(texts[0].Text))
}

// decodeValue decodes a <Value> element holding one builtin scalar or a
// ListOf<Type> array. Structured payloads (ExtensionObject, ...) yield nil.
func decodeValue(v *xmlElement) (*Value, error) {
	if len(v.Children) == 0 {
		return nil, nil
	}
	payload := &v.Children[0]
	name := payload.XMLName.Local

	if elemType, ok := strings.CutPrefix(name, "ListOf"); ok {
		out := &Value{Type: elemType, IsArray: true, Elements: make([]any, 0, len(payload.Children))}
		for i := range payload.Children {
			item, ok, err := decodeScalar(&payload.Children[i])
			if err != nil {
				return nil, fmt.Errorf("%s element %d: %w", name, i, err)
			}
			if !ok {
				return nil, nil
			}
			out.Elements = append(out.Elements, item)
		}
		return out, nil
	}

	scalar, ok, err := decodeScalar(payload)
	if err != nil || !ok {
		return nil, err
	}
	return &Value{Type: name, Scalar: scalar}, nil
}

// decodeScalar decodes one builtin-typed element. ok is false for types the
// reader does not decode.
func decodeScalar(e *xmlElement) (value any, ok bool, err error) {
	text := strings.TrimSpace(e.Text)
	name := e.XMLName.Local

	switch name {
	case "Boolean":
		value, err = strconv.ParseBool(text)
	case "SByte", "Int16", "Int32", "Int64":
		value, err = strconv.ParseInt(text, 10, 64)
	case "Byte", "UInt16", "UInt32", "UInt64":
		value, err = strconv.ParseUint(text, 10, 64)
	case "Float", "Double":
		value, err = strconv.ParseFloat(text, 64)
	case "String":
		value = e.Text
	case "DateTime":
		value, err = time.Parse(time.RFC3339Nano, text)
	case "LocalizedText":
		value = graph.LocalizedText{Locale: e.childText("Locale"), Text: e.childText("Text")}
	case "QualifiedName":
		var ns uint64
		if idx := e.childText("NamespaceIndex"); idx != "" {
			ns, err = strconv.ParseUint(idx, 10, 16)
		}
		value = graph.QualifiedName{Namespace: uint16(ns), Name: e.childText("Name")}
	case "NodeId", "ExpandedNodeId":
		value, err = graph.ParseNodeId(e.childText("Identifier"))
	default:
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: %s value %q: %v", graph.ErrParse, name, text, err)
	}
	return value, true, nil
}

// IsNodeSet reports whether the root element of content is UANodeSet.
func IsNodeSet(content []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local == "UANodeSet"
		}
	}
}
