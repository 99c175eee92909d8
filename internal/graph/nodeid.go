package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentifierType is the kind of identifier carried by a NodeId.
type IdentifierType uint8

const (
	// IdentifierNumeric marks a numeric (i=) identifier.
	IdentifierNumeric IdentifierType = 0
	// IdentifierString marks a string (s=) identifier.
	IdentifierString IdentifierType = 3
)

// String returns the textual marker of the identifier type ("i" or "s").
func (t IdentifierType) String() string {
	if t == IdentifierString {
		return "s"
	}
	return "i"
}

// NodeId identifies a node relative to a namespace index.
//
// NodeId is an immutable, comparable value and is used directly as a map key.
// The identifier kind always matches the stored identifier: string
// identifiers that look like positive integers are normalized to numeric ones
// at construction, so "ns=1;s=42" and "ns=1;i=42" denote the same node.
// Code that orders or compares identifiers numerically relies on this.
type NodeId struct {
	namespace uint16
	kind      IdentifierType
	numeric   uint32
	text      string
}

// NullNodeId is the null NodeId (ns=0;i=0).
var NullNodeId = NodeId{}

// NewNumericNodeId returns a numeric NodeId.
func NewNumericNodeId(namespace uint16, id uint32) NodeId {
	return NodeId{namespace: namespace, kind: IdentifierNumeric, numeric: id}
}

// NewStringNodeId returns a string NodeId. Identifiers consisting only of
// digits and denoting a positive integer become numeric identifiers.
func NewStringNodeId(namespace uint16, id string) NodeId {
	if n, ok := positiveInteger(id); ok {
		return NewNumericNodeId(namespace, n)
	}
	return NodeId{namespace: namespace, kind: IdentifierString, text: id}
}

func positiveInteger(s string) (uint32, bool) {
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}

// ParseNodeId parses "ns=<n>;i=<id>", "ns=<n>;s=<id>" or the namespace-0
// forms "i=<id>" and "s=<id>".
func ParseNodeId(text string) (NodeId, error) {
	var ns uint64
	rest := text
	if strings.HasPrefix(rest, "ns=") {
		sep := strings.IndexByte(rest, ';')
		if sep < 0 {
			return NullNodeId, fmt.Errorf("%w: node id %q: missing ';' after namespace", ErrParse, text)
		}
		var err error
		ns, err = strconv.ParseUint(rest[3:sep], 10, 16)
		if err != nil {
			return NullNodeId, fmt.Errorf("%w: node id %q: bad namespace index", ErrParse, text)
		}
		rest = rest[sep+1:]
	}

	switch {
	case strings.HasPrefix(rest, "i="):
		n, err := strconv.ParseUint(rest[2:], 10, 32)
		if err != nil {
			return NullNodeId, fmt.Errorf("%w: node id %q: bad numeric identifier", ErrParse, text)
		}
		return NewNumericNodeId(uint16(ns), uint32(n)), nil
	case strings.HasPrefix(rest, "s="):
		return NewStringNodeId(uint16(ns), rest[2:]), nil
	default:
		return NullNodeId, fmt.Errorf("%w: node id %q: missing i= or s= marker", ErrParse, text)
	}
}

// MustParseNodeId is like ParseNodeId but panics on error. It is meant for
// package-level well-known identifiers and tests.
func MustParseNodeId(text string) NodeId {
	id, err := ParseNodeId(text)
	if err != nil {
		panic(err)
	}
	return id
}

// Namespace returns the namespace index.
func (id NodeId) Namespace() uint16 { return id.namespace }

// Type returns the identifier kind.
func (id NodeId) Type() IdentifierType { return id.kind }

// Numeric returns the numeric identifier (zero for string identifiers).
func (id NodeId) Numeric() uint32 { return id.numeric }

// Identifier returns the identifier part in textual form.
func (id NodeId) Identifier() string {
	if id.kind == IdentifierString {
		return id.text
	}
	return strconv.FormatUint(uint64(id.numeric), 10)
}

// IsNull reports whether id is the null NodeId.
func (id NodeId) IsNull() bool { return id == NullNodeId }

// WithNamespace returns a copy of id in another namespace.
func (id NodeId) WithNamespace(ns uint16) NodeId {
	id.namespace = ns
	return id
}

// String returns the canonical form "ns=<n>;<i|s>=<id>".
func (id NodeId) String() string {
	return fmt.Sprintf("ns=%d;%s=%s", id.namespace, id.kind, id.Identifier())
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeId) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// QualifiedName is a namespace-qualified browse name.
type QualifiedName struct {
	Namespace uint16
	Name      string
}

// ParseQualifiedName parses "<ns>:<name>". Text without ':' is a name in
// namespace 0.
func ParseQualifiedName(text string) (QualifiedName, error) {
	prefix, name, found := strings.Cut(text, ":")
	if !found {
		if text == "" {
			return QualifiedName{}, fmt.Errorf("%w: empty qualified name", ErrParse)
		}
		return QualifiedName{Name: text}, nil
	}
	ns, err := strconv.ParseUint(prefix, 10, 16)
	if err != nil {
		return QualifiedName{}, fmt.Errorf("%w: qualified name %q: bad namespace index", ErrParse, text)
	}
	if name == "" {
		return QualifiedName{}, fmt.Errorf("%w: qualified name %q: empty name", ErrParse, text)
	}
	return QualifiedName{Namespace: uint16(ns), Name: name}, nil
}

// String returns the canonical form "<ns>:<name>".
func (q QualifiedName) String() string {
	return fmt.Sprintf("%d:%s", q.Namespace, q.Name)
}

// MarshalText implements encoding.TextMarshaler.
func (q QualifiedName) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *QualifiedName) UnmarshalText(text []byte) error {
	parsed, err := ParseQualifiedName(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// LocalizedText is a human readable text with an optional locale.
type LocalizedText struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// NewLocalizedText returns nil for empty text: an empty localized text is
// absent, not a value.
func NewLocalizedText(text, locale string) *LocalizedText {
	if text == "" {
		return nil
	}
	return &LocalizedText{Text: text, Locale: locale}
}

// ParseLocalizedText is NewLocalizedText with the argument order used by
// NodeSet documents (locale attribute first, element text second).
func ParseLocalizedText(locale, text string) *LocalizedText {
	return NewLocalizedText(text, locale)
}

// String omits the locale prefix when the locale is empty. A nil receiver
// yields the empty string.
func (lt *LocalizedText) String() string {
	if lt == nil {
		return ""
	}
	if lt.Locale == "" {
		return lt.Text
	}
	return lt.Locale + ":" + lt.Text
}
