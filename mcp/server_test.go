package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/ingestion"
	"github.com/Benny93/uaspace/internal/storage"
)

// mockSearch is a canned search backend for testing.
type mockSearch struct {
	results []storage.SearchResult
	queries []string
}

func (m *mockSearch) FTSSearch(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	m.queries = append(m.queries, query)
	return m.results, nil
}

func newTestSpace(t *testing.T) *graph.AddressSpace {
	t.Helper()
	space, err := ingestion.NewBootstrappedSpace()
	require.NoError(t, err)
	path := filepath.Join("..", "internal", "ingestion", "testdata", "Devices.NodeSet2.xml")
	_, err = ingestion.NewImporter(space).ImportFile(path, "DEV", nil)
	require.NoError(t, err)
	return space
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("CreatesServer", func(t *testing.T) {
		space := newTestSpace(t)
		server := NewServer(space, nil)

		assert.NotNil(t, server)
		assert.NotNil(t, server.server)
		assert.Same(t, space, server.space)
	})
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestSpace(t), nil)

	t.Run("ListTools", func(t *testing.T) {
		tools := server.ListTools()

		toolNames := make(map[string]bool)
		for _, tool := range tools {
			toolNames[tool.Name] = true
		}

		expectedTools := []string{
			"ua_search",
			"ua_read",
			"ua_browse",
			"ua_follow_all",
			"ua_translate_path",
			"ua_namespaces",
		}
		for _, expected := range expectedTools {
			assert.True(t, toolNames[expected], "Should have tool: %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
		}
	})
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestSpace(t), nil)
	ctx := context.Background()

	t.Run("Read", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_read", map[string]any{"node": "DEV:DeviceType"})
		require.NoError(t, err)
		assert.Contains(t, result, "ns=1;i=1001")
		assert.Contains(t, result, "ObjectType")
		assert.Contains(t, result, "A field device")
	})

	t.Run("ReadVariable", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_read", map[string]any{"node": "ns=1;i=6002"})
		require.NoError(t, err)
		assert.Contains(t, result, "Double")
		assert.Contains(t, result, "**ValueRank:** 2")
		assert.Contains(t, result, "[2 2]")
	})

	t.Run("ReadByPath", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_read", map[string]any{"node": "/DeviceSet/Pump1"})
		require.NoError(t, err)
		assert.Contains(t, result, "ns=1;i=5002")
	})

	t.Run("ReadMissing", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_read", map[string]any{"node": "DEV:Nope"})
		require.NoError(t, err)
		assert.Contains(t, result, "not found")
	})

	t.Run("ReadMissingArgument", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_read", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "No node provided")
	})

	t.Run("Browse", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_browse", map[string]any{"node": "DEV:Devices"})
		require.NoError(t, err)
		assert.Contains(t, result, "HasComponent -> 1:Pump1")
		assert.NotContains(t, result, "HasTypeDefinition")
	})

	t.Run("BrowseInverseExactType", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_browse", map[string]any{
			"node":             "DEV:Devices",
			"reference_type":   "Organizes",
			"direction":        "inverse",
			"include_subtypes": false,
		})
		require.NoError(t, err)
		assert.Contains(t, result, "Organizes <- 0:Objects")
	})

	t.Run("BrowseBadDirection", func(t *testing.T) {
		_, err := server.CallTool(ctx, "ua_browse", map[string]any{"node": "DEV:Devices", "direction": "sideways"})
		assert.ErrorIs(t, err, graph.ErrParse)
	})

	t.Run("BrowseNotAReferenceType", func(t *testing.T) {
		_, err := server.CallTool(ctx, "ua_browse", map[string]any{"node": "DEV:Devices", "reference_type": "BaseObjectType"})
		assert.ErrorIs(t, err, graph.ErrSchema)
	})

	t.Run("FollowAll", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_follow_all", map[string]any{"node": "DEV:DeviceType", "reference_type": "HasChild"})
		require.NoError(t, err)
		assert.Contains(t, result, "1:SerialNumber")
		assert.NotContains(t, result, "1:Calibration")
	})

	t.Run("TranslatePath", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_translate_path", map[string]any{"path": "/DeviceSet/Pump1"})
		require.NoError(t, err)
		assert.Contains(t, result, "ns=1;i=5002")

		result, err = server.CallTool(ctx, "ua_translate_path", map[string]any{"path": "/DeviceSet/Valve"})
		require.NoError(t, err)
		assert.Contains(t, result, "does not resolve")
	})

	t.Run("Namespaces", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ua_namespaces", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "| 0 | http://opcfoundation.org/UA/ | UA |")
		assert.Contains(t, result, "| 1 | http://example.org/Devices/ | DEV |")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "unknown_tool", map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	space := newTestSpace(t)

	t.Run("Backend", func(t *testing.T) {
		search := &mockSearch{results: []storage.SearchResult{
			{NodeID: "ns=1;i=1001", Score: 12, BrowseName: "1:DeviceType", Class: "ObjectType", Snippet: "A field device"},
		}}
		server := NewServer(space, search)

		result, err := server.CallTool(ctx, "ua_search", map[string]any{"query": "device", "limit": float64(5)})
		require.NoError(t, err)
		assert.Equal(t, []string{"device"}, search.queries)
		assert.Contains(t, result, "**1:DeviceType** (ObjectType)")
		assert.Contains(t, result, "A field device")
	})

	t.Run("IndexedStore", func(t *testing.T) {
		store := storage.NewMemoryBackend()
		nodes := make([]*graph.Node, 0, space.NodeCount())
		for n := range space.IterNodes() {
			nodes = append(nodes, n)
		}
		require.NoError(t, store.IndexNodes(ctx, nodes))

		result, err := NewServer(space, store).CallTool(ctx, "ua_search", map[string]any{"query": "SerialNumber"})
		require.NoError(t, err)
		assert.Contains(t, result, "ns=1;i=6001")
	})

	t.Run("ScanWithoutBackend", func(t *testing.T) {
		server := NewServer(space, nil)

		result, err := server.CallTool(ctx, "ua_search", map[string]any{"query": "pump"})
		require.NoError(t, err)
		assert.Contains(t, result, "Found 1 results")
		assert.Contains(t, result, "ns=1;i=5002")

		result, err = server.CallTool(ctx, "ua_search", map[string]any{"query": "zzz"})
		require.NoError(t, err)
		assert.Equal(t, "No results found", result)
	})

	t.Run("MissingQuery", func(t *testing.T) {
		result, err := NewServer(space, nil).CallTool(ctx, "ua_search", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "No query provided")
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestSpace(t), nil)
	ctx := context.Background()

	t.Run("ListResources", func(t *testing.T) {
		resourceURIs := make(map[string]bool)
		for _, res := range server.ListResources() {
			resourceURIs[res.URI] = true
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MIMEType)
		}

		for _, expected := range []string{"ua://overview", "ua://namespaces", "ua://schema"} {
			assert.True(t, resourceURIs[expected], "Should have resource: %s", expected)
		}
	})

	t.Run("ReadOverview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ua://overview")
		require.NoError(t, err)
		assert.Contains(t, content, "**Nodes:** 62")
		assert.Contains(t, content, "**Namespaces:** 2")
		assert.Contains(t, content, "ObjectType:")
	})

	t.Run("ReadSchema", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ua://schema")
		require.NoError(t, err)
		assert.Contains(t, content, "`References` ns=0;i=31")
		assert.Contains(t, content, "    - `HasChild`")
		assert.Contains(t, content, "(inverse: SubtypeOf)")
	})

	t.Run("ReadUnknownResource", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ua://unknown")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

// connect runs server over an in-memory transport and returns a connected
// client session.
func connect(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestSpace(t), nil)

	t.Run("NilTransport", func(t *testing.T) {
		err := server.Run(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("Session", func(t *testing.T) {
		ctx := context.Background()
		session := connect(t, NewServer(newTestSpace(t), nil))

		tools, err := session.ListTools(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, tools.Tools, 6)

		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "ua_read",
			Arguments: map[string]any{"node": "HasSubtype"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Contains(t, textOf(t, res), "ns=0;i=45")

		res, err = session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "ua_browse",
			Arguments: map[string]any{"node": "DEV:DeviceType", "direction": "sideways"},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)

		resources, err := session.ListResources(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, resources.Resources, 3)

		read, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "ua://namespaces"})
		require.NoError(t, err)
		require.Len(t, read.Contents, 1)
		assert.Contains(t, read.Contents[0].Text, "DEV")
		assert.Equal(t, "text/plain", read.Contents[0].MIMEType)
	})
}
