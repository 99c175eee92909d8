package ingestion

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/parsers"
)

// ImportResult summarizes one nodeset import.
type ImportResult struct {
	Alias          string
	NamespaceURI   string
	NamespaceIndex uint16
	Nodes          int
	References     int
	ImplicitLinks  int
	Values         int
}

// Importer loads parsed NodeSet2 documents into an address space.
type Importer struct {
	space *graph.AddressSpace
}

// NewImporter creates an importer writing into space.
func NewImporter(space *graph.AddressSpace) *Importer {
	return &Importer{space: space}
}

// importState carries the per-document namespace mapping.
type importState struct {
	doc      *parsers.NodeSet
	localMap []uint16 // local namespace index -> table index
}

// pendingNode is an inserted node whose references and value are wired in
// later passes.
type pendingNode struct {
	el *parsers.NodeElement
	id graph.NodeId
}

// Import imports doc and binds alias to the namespace it defines.
// dependencies lists the aliases of previously imported namespaces the
// document relies on.
//
// The namespace table is only touched once every namespace the document
// refers to is known; otherwise Import fails with ErrUnresolvedDependency and
// nothing changes. Nodes are inserted in document order before any reference
// is wired, so forward references within the document resolve. A failure
// after the first insert leaves the inserted nodes in place.
func (imp *Importer) Import(doc *parsers.NodeSet, alias string, dependencies []string) (*ImportResult, error) {
	st, result, err := imp.mapNamespaces(doc, alias, dependencies)
	if err != nil {
		return nil, err
	}

	// Pass 1: nodes.
	pending := make([]pendingNode, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		el := &doc.Nodes[i]
		node, err := st.buildNode(el)
		if err != nil {
			return result, fmt.Errorf("importing %s: %w", alias, err)
		}
		if _, err := imp.space.InsertNode(node); err != nil {
			return result, fmt.Errorf("importing %s: %w", alias, err)
		}
		pending = append(pending, pendingNode{el: el, id: node.ID})
		result.Nodes++
	}

	// Pass 2: references.
	for _, p := range pending {
		for _, ref := range p.el.References {
			refType, err := st.resolveID(ref.ReferenceType)
			if err != nil {
				return result, fmt.Errorf("importing %s: node %s: reference type: %w", alias, p.id, err)
			}
			target, err := st.resolveID(ref.Target)
			if err != nil {
				return result, fmt.Errorf("importing %s: node %s: reference target: %w", alias, p.id, err)
			}
			if err := imp.space.AddReference(p.id, target, refType, ref.IsForward); err != nil {
				if errors.Is(err, graph.ErrNotFound) {
					return result, fmt.Errorf("importing %s: node %s: %w: %w", alias, p.id, graph.ErrDanglingReference, err)
				}
				return result, fmt.Errorf("importing %s: node %s: %w", alias, p.id, err)
			}
			result.References++
		}
	}

	// Declared parents without an explicit link get an implicit hierarchical
	// reference.
	if imp.space.Has(graph.HierarchicalReferencesID) {
		for _, p := range pending {
			linked, err := imp.linkParent(st, p)
			if err != nil {
				return result, fmt.Errorf("importing %s: %w", alias, err)
			}
			if linked {
				result.ImplicitLinks++
			}
		}
	}

	// Pass 3: datatypes and values, once every DataType node is known.
	for _, p := range pending {
		wrote, err := imp.applyValue(st, p)
		if err != nil {
			return result, fmt.Errorf("importing %s: %w", alias, err)
		}
		if wrote {
			result.Values++
		}
	}

	return result, nil
}

// mapNamespaces validates the document's namespace dependencies and, once
// they all resolve, registers its own namespace and alias.
func (imp *Importer) mapNamespaces(doc *parsers.NodeSet, alias string, dependencies []string) (*importState, *ImportResult, error) {
	table := imp.space.Namespaces()

	for _, dep := range dependencies {
		if _, err := table.Resolve(dep); err != nil {
			return nil, nil, fmt.Errorf("%w: %s depends on alias %q which is not imported", graph.ErrUnresolvedDependency, alias, dep)
		}
	}

	own := doc.OwnNamespace()
	if own == "" {
		own = graph.BaseNamespaceURI
	}
	defined := map[string]bool{own: true}
	for _, m := range doc.Models {
		defined[m.ModelURI] = true
	}
	for _, uri := range slices.Concat(doc.NamespaceURIs, doc.RequiredModels()) {
		if defined[uri] {
			continue
		}
		if _, err := table.IndexOf(uri); err != nil {
			return nil, nil, fmt.Errorf("%w: %s refers to namespace %q which is not imported", graph.ErrUnresolvedDependency, alias, uri)
		}
	}

	if alias != "" {
		if bound, err := table.Resolve(alias); err == nil {
			existing, err := table.IndexOf(own)
			if err != nil || existing != bound {
				return nil, nil, fmt.Errorf("%w: alias %q is already bound to namespace %d", graph.ErrDuplicate, alias, bound)
			}
		}
	}

	st := &importState{doc: doc, localMap: []uint16{0}}
	for _, uri := range doc.NamespaceURIs {
		idx, err := table.Add(uri)
		if err != nil {
			return nil, nil, err
		}
		st.localMap = append(st.localMap, idx)
	}
	ownIdx, err := table.Add(own)
	if err != nil {
		return nil, nil, err
	}
	if alias != "" {
		if err := table.BindAlias(alias, ownIdx); err != nil {
			return nil, nil, err
		}
	}

	return st, &ImportResult{Alias: alias, NamespaceURI: own, NamespaceIndex: ownIdx}, nil
}

// resolveID substitutes document aliases, parses and remaps a NodeId.
func (st *importState) resolveID(text string) (graph.NodeId, error) {
	if target, ok := st.doc.Aliases[text]; ok {
		text = target
	}
	id, err := graph.ParseNodeId(text)
	if err != nil {
		return graph.NullNodeId, err
	}
	ns, err := st.remap(id.Namespace())
	if err != nil {
		return graph.NullNodeId, fmt.Errorf("node id %q: %w", text, err)
	}
	return id.WithNamespace(ns), nil
}

func (st *importState) remap(local uint16) (uint16, error) {
	if int(local) >= len(st.localMap) {
		return 0, fmt.Errorf("%w: namespace index %d is not declared by the document", graph.ErrUnresolvedDependency, local)
	}
	return st.localMap[local], nil
}

func (st *importState) buildNode(el *parsers.NodeElement) (*graph.Node, error) {
	id, err := st.resolveID(el.NodeID)
	if err != nil {
		return nil, err
	}
	browseName, err := graph.ParseQualifiedName(el.BrowseName)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	if browseName.Namespace, err = st.remap(browseName.Namespace); err != nil {
		return nil, fmt.Errorf("node %s: browse name: %w", id, err)
	}

	node := &graph.Node{
		ID:           id,
		Class:        el.Class,
		BrowseName:   browseName,
		DisplayName:  el.DisplayName,
		Description:  el.Description,
		SymbolicName: el.SymbolicName,
		InverseName:  el.InverseName,
	}
	if len(el.Attributes) > 0 {
		node.Extras = el.Attributes
	}
	if el.ParentNodeID != "" {
		if node.ParentID, err = st.resolveID(el.ParentNodeID); err != nil {
			return nil, fmt.Errorf("node %s: parent: %w", id, err)
		}
	}

	if el.Class == graph.NodeClassVariable || el.Class == graph.NodeClassVariableType {
		va, err := st.variableAttributes(el)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		node.Variable = va
	}
	return node, nil
}

func (st *importState) variableAttributes(el *parsers.NodeElement) (*graph.VariableAttributes, error) {
	va := &graph.VariableAttributes{ValueRank: graph.ValueRankScalar}
	if el.DataType != "" {
		dt, err := st.resolveID(el.DataType)
		if err != nil {
			return nil, fmt.Errorf("data type: %w", err)
		}
		va.DataType = dt
	}

	switch {
	case el.ValueRank != nil:
		va.ValueRank = *el.ValueRank
	case len(el.ArrayDimensions) > 0:
		va.ValueRank = len(el.ArrayDimensions)
	}
	if va.ValueRank < graph.ValueRankScalarOrOneDimension {
		return nil, fmt.Errorf("%w: invalid value rank %d", graph.ErrShape, va.ValueRank)
	}
	if len(el.ArrayDimensions) > 0 {
		if va.ValueRank >= 1 && len(el.ArrayDimensions) != va.ValueRank {
			return nil, fmt.Errorf("%w: %d array dimensions for value rank %d", graph.ErrShape, len(el.ArrayDimensions), va.ValueRank)
		}
		if va.ValueRank >= 1 {
			va.Dimensions = slices.Clone(el.ArrayDimensions)
		}
	}
	return va, nil
}

// linkParent adds parent→child HierarchicalReferences when the declared
// parent exists and no reference connects the two nodes yet.
func (imp *Importer) linkParent(st *importState, p pendingNode) (bool, error) {
	if p.el.ParentNodeID == "" {
		return false, nil
	}
	parent, err := st.resolveID(p.el.ParentNodeID)
	if err != nil || !imp.space.Has(parent) {
		return false, nil
	}
	refs, err := imp.space.References(p.id)
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if ref.Target == parent {
			return false, nil
		}
	}
	if err := imp.space.AddReference(parent, p.id, graph.HierarchicalReferencesID, true); err != nil {
		return false, err
	}
	return true, nil
}

// applyValue checks the variable's datatype and writes its imported value.
func (imp *Importer) applyValue(st *importState, p pendingNode) (bool, error) {
	if p.el.Class != graph.NodeClassVariable && p.el.Class != graph.NodeClassVariableType {
		return false, nil
	}
	if p.el.DataType != "" {
		dt, err := st.resolveID(p.el.DataType)
		if err != nil {
			return false, err
		}
		dtNode, err := imp.space.GetNode(dt)
		if err != nil {
			return false, fmt.Errorf("node %s: %w: data type %s", p.id, graph.ErrDanglingReference, dt)
		}
		if dtNode.Class != graph.NodeClassDataType {
			return false, fmt.Errorf("%w: node %s: data type %s is a %s", graph.ErrSchema, p.id, dt, dtNode.Class)
		}
	}
	if p.el.Value == nil {
		return false, nil
	}

	value, err := st.convertValue(p.el.Value)
	if err != nil {
		return false, fmt.Errorf("node %s: %w", p.id, err)
	}
	if err := imp.space.SetValue(p.id, value); err != nil {
		return false, err
	}
	return true, nil
}

// convertValue remaps namespace indices embedded in NodeId and
// QualifiedName values.
func (st *importState) convertValue(v *parsers.Value) (any, error) {
	if !v.IsArray {
		return st.remapValue(v.Scalar)
	}
	elems := make([]any, len(v.Elements))
	for i, e := range v.Elements {
		r, err := st.remapValue(e)
		if err != nil {
			return nil, err
		}
		elems[i] = r
	}
	return elems, nil
}

func (st *importState) remapValue(v any) (any, error) {
	switch x := v.(type) {
	case graph.NodeId:
		ns, err := st.remap(x.Namespace())
		if err != nil {
			return nil, err
		}
		return x.WithNamespace(ns), nil
	case graph.QualifiedName:
		ns, err := st.remap(x.Namespace)
		if err != nil {
			return nil, err
		}
		x.Namespace = ns
		return x, nil
	}
	return v, nil
}
