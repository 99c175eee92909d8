package graph

import "errors"

// Error taxonomy of the address space. Every error returned by this package
// (and by the importer built on top of it) wraps exactly one of these, so
// callers can dispatch with errors.Is.
var (
	// ErrParse reports malformed NodeId or QualifiedName text.
	ErrParse = errors.New("parse error")

	// ErrSchema reports an unrecognized NodeClass, a missing required XML
	// attribute, or a reference whose type is not a ReferenceType node.
	ErrSchema = errors.New("schema error")

	// ErrUnresolvedDependency reports an import that references a namespace
	// which has not been imported yet.
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrDanglingReference reports a reference whose target was never inserted.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrDuplicate reports a NodeId (or alias) collision on insert.
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound reports a lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrShape reports an invalid rank, dimension or value mutation.
	ErrShape = errors.New("shape error")
)
