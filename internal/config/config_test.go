package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
nodesets:
  - path: Opc.Ua.Di.NodeSet2.xml
    alias: DI
  - path: /abs/Opc.Ua.AutoID.NodeSet2.xml
    alias: AutoId
    depends: [DI]
namespaces: [ "http://example.org/" ]
rollback: true
continue_on_error: false
`

func TestParse(t *testing.T) {
	t.Parallel()

	plan, err := Parse([]byte(samplePlan))
	require.NoError(t, err)
	require.Len(t, plan.NodeSets, 2)
	assert.Equal(t, NodeSetEntry{Path: "Opc.Ua.Di.NodeSet2.xml", Alias: "DI"}, plan.NodeSets[0])
	assert.Equal(t, []string{"DI"}, plan.NodeSets[1].Depends)
	assert.Equal(t, []string{"http://example.org/"}, plan.Namespaces)
	assert.True(t, plan.Rollback)
	assert.False(t, plan.ContinueOnError)
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	plan, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, plan.NodeSets)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		message string
	}{
		{"MissingPath", "nodesets:\n  - alias: DI\n", "nodesets[0].path: field is required"},
		{"MissingAlias", "nodesets:\n  - path: a.xml\n", "nodesets[0].alias: field is required"},
		{"NonAlphanumericAlias", "nodesets:\n  - path: a.xml\n    alias: D-I\n", "must be alphanumeric"},
		{"DuplicateAlias", "nodesets:\n  - {path: a.xml, alias: DI}\n  - {path: b.xml, alias: DI}\n", "already declared"},
		{"ReservedAlias", "nodesets:\n  - {path: a.xml, alias: UA}\n", "already declared"},
		{"DependencyDeclaredLater", "nodesets:\n  - {path: a.xml, alias: AutoId, depends: [DI]}\n  - {path: b.xml, alias: DI}\n", "must be declared before"},
		{"UnknownField", "nodesets: []\nrollbak: true\n", "rollbak"},
		{"EmptyNamespace", "namespaces: [\"\"]\n", "namespaces[0]: field is required"},
		{"MalformedYAML", "nodesets: [", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.content))
			require.ErrorIs(t, err, ErrInvalidPlan)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParse_BaseDependency(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("nodesets:\n  - {path: a.xml, alias: DI, depends: [UA]}\n"))
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))

	plan, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Opc.Ua.Di.NodeSet2.xml"), plan.NodeSets[0].Path)
	assert.Equal(t, "/abs/Opc.Ua.AutoID.NodeSet2.xml", plan.NodeSets[1].Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPlan_Append(t *testing.T) {
	t.Parallel()

	plan := &Plan{}
	require.NoError(t, plan.Append("DI=di.xml", "AutoId=autoid.xml"))
	require.Len(t, plan.NodeSets, 2)
	assert.Empty(t, plan.NodeSets[0].Depends)
	assert.Equal(t, []string{"DI"}, plan.NodeSets[1].Depends)

	assert.ErrorIs(t, plan.Append("broken"), ErrInvalidPlan)
	assert.ErrorIs(t, (&Plan{}).Append("=x.xml"), ErrInvalidPlan)
	assert.ErrorIs(t, (&Plan{}).Append("DI=a.xml", "DI=b.xml"), ErrInvalidPlan)
}
