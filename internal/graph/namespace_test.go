package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceTable_Add(t *testing.T) {
	t.Parallel()

	nt := NewNamespaceTable()

	idx, err := nt.Add("http://opcfoundation.org/UA/DI/")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), idx)

	again, err := nt.Add("http://opcfoundation.org/UA/DI/")
	require.NoError(t, err)
	assert.Equal(t, idx, again)

	idx2, err := nt.Add("http://opcfoundation.org/UA/AutoID/")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), idx2)

	base, err := nt.Add(BaseNamespaceURI)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), base)

	_, err = nt.Add("")
	assert.ErrorIs(t, err, ErrSchema)

	assert.Equal(t, 3, nt.Len())
	assert.Equal(t, []string{BaseNamespaceURI, "http://opcfoundation.org/UA/DI/", "http://opcfoundation.org/UA/AutoID/"}, nt.URIs())
}

func TestNamespaceTable_Lookups(t *testing.T) {
	t.Parallel()

	nt := NewNamespaceTable()
	idx, err := nt.Add("urn:a")
	require.NoError(t, err)

	got, err := nt.IndexOf("urn:a")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
	_, err = nt.IndexOf("urn:b")
	assert.ErrorIs(t, err, ErrNotFound)

	uri, err := nt.URI(idx)
	require.NoError(t, err)
	assert.Equal(t, "urn:a", uri)
	_, err = nt.URI(5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNamespaceTable_Aliases(t *testing.T) {
	t.Parallel()

	nt := NewNamespaceTable()
	idx, err := nt.Add("urn:di")
	require.NoError(t, err)

	require.NoError(t, nt.BindAlias("DI", idx))
	require.NoError(t, nt.BindAlias("DI", idx))
	require.NoError(t, nt.BindAlias("Devices", idx))
	assert.ErrorIs(t, nt.BindAlias("DI", 0), ErrDuplicate)
	assert.ErrorIs(t, nt.BindAlias("X", 9), ErrNotFound)
	assert.ErrorIs(t, nt.BindAlias("", idx), ErrSchema)

	got, err := nt.Resolve("DI")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
	base, err := nt.Resolve(BaseAlias)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), base)

	assert.Equal(t, []string{"DI", "Devices"}, nt.AliasesOf(idx))
	assert.Equal(t, map[string]uint16{"UA": 0, "DI": idx, "Devices": idx}, nt.Aliases())
}
