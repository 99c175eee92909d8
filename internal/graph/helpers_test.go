package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testNode struct {
	id    NodeId
	class NodeClass
	name  string
	super NodeId
}

// baseNodes is a trimmed namespace-0 hierarchy, enough for the graph tests.
var baseNodes = []testNode{
	{ReferencesID, NodeClassReferenceType, "References", NullNodeId},
	{HierarchicalReferencesID, NodeClassReferenceType, "HierarchicalReferences", ReferencesID},
	{NonHierarchicalRefsID, NodeClassReferenceType, "NonHierarchicalReferences", ReferencesID},
	{HasChildID, NodeClassReferenceType, "HasChild", HierarchicalReferencesID},
	{OrganizesID, NodeClassReferenceType, "Organizes", HierarchicalReferencesID},
	{AggregatesID, NodeClassReferenceType, "Aggregates", HasChildID},
	{HasSubtypeID, NodeClassReferenceType, "HasSubtype", HasChildID},
	{HasComponentID, NodeClassReferenceType, "HasComponent", AggregatesID},
	{HasPropertyID, NodeClassReferenceType, "HasProperty", AggregatesID},
	{HasTypeDefinitionID, NodeClassReferenceType, "HasTypeDefinition", NonHierarchicalRefsID},
	{HasModellingRuleID, NodeClassReferenceType, "HasModellingRule", NonHierarchicalRefsID},

	{BaseDataTypeID, NodeClassDataType, "BaseDataType", NullNodeId},
	{BooleanID, NodeClassDataType, "Boolean", BaseDataTypeID},
	{StringID, NodeClassDataType, "String", BaseDataTypeID},
	{NumberID, NodeClassDataType, "Number", BaseDataTypeID},
	{IntegerID, NodeClassDataType, "Integer", NumberID},
	{Int32ID, NodeClassDataType, "Int32", IntegerID},
	{DoubleID, NodeClassDataType, "Double", NumberID},
	{LocalizedTextID, NodeClassDataType, "LocalizedText", BaseDataTypeID},

	{BaseObjectTypeID, NodeClassObjectType, "BaseObjectType", NullNodeId},
	{FolderTypeID, NodeClassObjectType, "FolderType", BaseObjectTypeID},
	{BaseVariableTypeID, NodeClassVariableType, "BaseVariableType", NullNodeId},
	{BaseDataVariableTypeID, NodeClassVariableType, "BaseDataVariableType", BaseVariableTypeID},
}

// newTestSpace returns an address space holding baseNodes, the Objects
// folder and the Mandatory modelling rule.
func newTestSpace(t *testing.T) *AddressSpace {
	t.Helper()

	s := NewAddressSpace()
	for _, n := range baseNodes {
		_, err := s.InsertNode(&Node{ID: n.id, Class: n.class, BrowseName: QualifiedName{Name: n.name}})
		require.NoError(t, err)
	}
	for _, n := range baseNodes {
		if !n.super.IsNull() {
			require.NoError(t, s.AddReference(n.id, n.super, HasSubtypeID, false))
		}
	}

	_, err := s.InsertNode(&Node{ID: ObjectsFolderID, Class: NodeClassObject, BrowseName: QualifiedName{Name: "Objects"}})
	require.NoError(t, err)
	require.NoError(t, s.AddReference(ObjectsFolderID, FolderTypeID, HasTypeDefinitionID, true))
	_, err = s.InsertNode(&Node{ID: ModellingRuleMandatory, Class: NodeClassObject, BrowseName: QualifiedName{Name: "Mandatory"}})
	require.NoError(t, err)
	return s
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}
