package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddObjectType(t *testing.T) {
	t.Parallel()

	t.Run("LinksSupertype", func(t *testing.T) {
		t.Parallel()
		s := newTestSpace(t)

		tt, err := s.AddObjectType("PumpType", NewNumericNodeId(0, 5000), BaseObjectTypeID, HasSubtypeID)
		require.NoError(t, err)
		assert.Equal(t, NodeClassObjectType, tt.Class)
		assert.Equal(t, "PumpType", tt.DisplayName.Text)

		supers, err := s.FollowInverse(tt.ID, HasSubtypeID)
		require.NoError(t, err)
		assert.Equal(t, []string{"BaseObjectType"}, names(supers))

		found, err := s.Lookup("PumpType")
		require.NoError(t, err)
		assert.Equal(t, tt.ID, found.ID)
	})

	t.Run("Failures", func(t *testing.T) {
		t.Parallel()
		s := newTestSpace(t)
		before := s.NodeCount()

		_, err := s.AddObjectType("X", NewNumericNodeId(0, 5000), NewNumericNodeId(0, 4999), HasSubtypeID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.AddObjectType("X", BaseObjectTypeID, BaseObjectTypeID, HasSubtypeID)
		assert.ErrorIs(t, err, ErrDuplicate)
		_, err = s.AddObjectType("X", NewNumericNodeId(0, 5000), BaseObjectTypeID, BaseObjectTypeID)
		assert.ErrorIs(t, err, ErrSchema)
		assert.Equal(t, before, s.NodeCount())
	})
}

func TestAddVariableTypeAndReferenceType(t *testing.T) {
	t.Parallel()

	s := newTestSpace(t)
	vt, err := s.AddVariableType("AnalogType", NewNumericNodeId(0, 5100), BaseDataVariableTypeID, HasSubtypeID)
	require.NoError(t, err)
	require.NotNil(t, vt.Variable)

	rt, err := s.AddReferenceType("FeedsInto", NewNumericNodeId(0, 5101), NonHierarchicalRefsID, HasSubtypeID, "FedBy")
	require.NoError(t, err)
	assert.Equal(t, "FedBy", rt.InverseName.Text)
	assert.True(t, s.IsSubtypeOf(rt.ID, ReferencesID))
}

func TestAddObject(t *testing.T) {
	t.Parallel()

	s := newTestSpace(t)
	obj, err := s.AddObject("Plant", NewNumericNodeId(0, 5200), ObjectsFolderID, OrganizesID, FolderTypeID)
	require.NoError(t, err)

	typeDefs, err := s.Follow(obj.ID, HasTypeDefinitionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"FolderType"}, names(typeDefs))

	_, err = s.AddObject("Bad", NewNumericNodeId(0, 5201), ObjectsFolderID, OrganizesID, BaseDataTypeID)
	assert.ErrorIs(t, err, ErrSchema)
	assert.False(t, s.Has(NewNumericNodeId(0, 5201)))
}

func TestAddVariable(t *testing.T) {
	t.Parallel()

	s := newTestSpace(t)
	tt, err := s.AddObjectType("PumpType", NewNumericNodeId(0, 5000), BaseObjectTypeID, HasSubtypeID)
	require.NoError(t, err)

	v, err := s.AddVariable(tt.ID, "Speed")
	require.NoError(t, err)
	assert.Equal(t, NewStringNodeId(0, "/PumpType/Speed"), v.ID)
	assert.Equal(t, tt.ID, v.ParentID)
	assert.Equal(t, ValueRankScalar, v.Variable.ValueRank)

	rules, err := s.Follow(v.ID, HasModellingRuleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mandatory"}, names(rules))

	plain, err := s.AddVariable(ObjectsFolderID, "Loose")
	require.NoError(t, err)
	rules, err = s.Follow(plain.ID, HasModellingRuleID)
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, err = s.AddVariable(tt.ID, "Speed")
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = s.AddVariable(tt.ID, "")
	assert.ErrorIs(t, err, ErrSchema)
	_, err = s.AddVariable(NewNumericNodeId(0, 4999), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManifest(t *testing.T) {
	t.Parallel()

	s := newTestSpace(t)
	ns, err := s.AddNamespace("http://example.org/Testing/")
	require.NoError(t, err)

	tt, err := s.AddObjectType("MatrixTestType", NewNumericNodeId(ns, 1000), BaseObjectTypeID, HasSubtypeID)
	require.NoError(t, err)
	m, err := s.AddVariable(tt.ID, "Matrix_2x2")
	require.NoError(t, err)
	require.NoError(t, s.SetDimensions(m.ID, []uint32{2, 2}))
	require.NoError(t, s.SetValue(m.ID, []int{11, 12, 21, 22}))
	_, err = s.AddVariable(tt.ID, "Vector")
	require.NoError(t, err)

	inst, err := s.Manifest(ObjectsFolderID, "MatrixTest", tt.ID)
	require.NoError(t, err)
	assert.Equal(t, NewStringNodeId(ns, "/MatrixTest"), inst.ID)

	t.Run("ChildrenResolveByPath", func(t *testing.T) {
		child, err := s.Get("/MatrixTest/Matrix_2x2")
		require.NoError(t, err)
		assert.Equal(t, "ns=1;s=/MatrixTest/Matrix_2x2", child.ID.String())
		assert.Equal(t, 2, child.Variable.ValueRank)
		row, err := child.Variable.Row(1)
		require.NoError(t, err)
		assert.Equal(t, []any{21.0, 22.0}, row)

		byID, err := s.Get("ns=1;s=/MatrixTest/Vector")
		require.NoError(t, err)
		assert.Equal(t, "Vector", byID.Name())
	})

	t.Run("InstanceIsIndependentOfTemplate", func(t *testing.T) {
		require.NoError(t, s.SetValue(NewStringNodeId(ns, "/MatrixTest/Vector"), []int{1, 2, 3}))
		tmpl, err := s.GetNode(NewStringNodeId(ns, "/MatrixTestType/Vector"))
		require.NoError(t, err)
		assert.Nil(t, tmpl.Variable.Value)
	})

	t.Run("TypeDefinitionAndComponents", func(t *testing.T) {
		typeDefs, err := s.Follow(inst.ID, HasTypeDefinitionID)
		require.NoError(t, err)
		assert.Equal(t, []string{"MatrixTestType"}, names(typeDefs))

		children, err := s.Follow(inst.ID, HasComponentID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Matrix_2x2", "Vector"}, names(children))
	})

	t.Run("Failures", func(t *testing.T) {
		before := s.NodeCount()
		_, err := s.Manifest(ObjectsFolderID, "MatrixTest", tt.ID)
		assert.ErrorIs(t, err, ErrDuplicate)
		_, err = s.Manifest(ObjectsFolderID, "Other", BaseDataTypeID)
		assert.ErrorIs(t, err, ErrSchema)
		_, err = s.Manifest(NewNumericNodeId(0, 4999), "Other", tt.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, before, s.NodeCount())
	})
}
