// Package mcp provides the MCP (Model Context Protocol) server exposing a
// loaded address space.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/storage"
)

const (
	serverName    = "uaspace"
	serverVersion = "0.1.0"
)

// Server represents the MCP server.
type Server struct {
	space  *graph.AddressSpace
	search SearchBackend
	server *mcp.Server
}

// SearchBackend is the search side of a storage backend.
type SearchBackend interface {
	FTSSearch(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
}

// NewServer creates a new MCP server over space and registers its tools and
// resources. search may be nil, in which case ua_search scans browse names.
func NewServer(space *graph.AddressSpace, search SearchBackend) *Server {
	s := &Server{
		space:  space,
		search: search,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	for _, tool := range s.ListTools() {
		s.server.AddTool(tool, s.toolHandler(tool.Name))
	}
	for _, res := range s.ListResources() {
		s.server.AddResource(res, s.resourceHandler)
	}

	return s
}

func nodeArg(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []*mcp.Tool {
	const nodeDesc = `NodeId ("ns=1;i=1001"), browse path from Objects ("/DeviceSet/Pump1") or symbol ("DI:DeviceType")`

	return []*mcp.Tool{
		{
			Name:        "ua_search",
			Description: "Full-text search over browse names, display names, symbolic names and descriptions.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "ua_read",
			Description: "Read the attributes of a node: class, names, description, datatype, value rank, dimensions and value.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"node": nodeArg(nodeDesc),
				},
				Required: []string{"node"},
			},
		},
		{
			Name:        "ua_browse",
			Description: "List the references of a node filtered by reference type and direction.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"node":             nodeArg(nodeDesc),
					"reference_type":   {Type: "string", Description: "Reference type, default HierarchicalReferences"},
					"direction":        {Type: "string", Description: "forward, inverse or both", Enum: []any{"forward", "inverse", "both"}},
					"include_subtypes": {Type: "boolean", Description: "Also match subtypes of the reference type (default true)"},
				},
				Required: []string{"node"},
			},
		},
		{
			Name:        "ua_follow_all",
			Description: "Transitively follow forward references of a type and its subtypes, e.g. all descendants over HasChild.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"node":           nodeArg(nodeDesc),
					"reference_type": {Type: "string", Description: "Reference type, default HierarchicalReferences"},
				},
				Required: []string{"node"},
			},
		},
		{
			Name:        "ua_translate_path",
			Description: "Resolve a '/'-separated browse path along forward hierarchical references.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"path":  {Type: "string", Description: "Browse path, e.g. /DeviceSet/Pump1"},
					"start": nodeArg("Start node, default the Objects folder"),
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "ua_namespaces",
			Description: "List the namespace table with the aliases bound to each namespace.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []*mcp.Resource {
	return []*mcp.Resource{
		{
			URI:         "ua://overview",
			Name:        "Address Space Overview",
			Description: "Node and reference counts of the loaded address space",
			MIMEType:    "text/plain",
		},
		{
			URI:         "ua://namespaces",
			Name:        "Namespace Table",
			Description: "Namespace URIs by index with their aliases",
			MIMEType:    "text/plain",
		},
		{
			URI:         "ua://schema",
			Name:        "Address Space Schema",
			Description: "Node classes and the standard reference type hierarchy",
			MIMEType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "ua_search":
		query, _ := args["query"].(string)
		limit := intArg(args, "limit", 20)
		return handleSearch(ctx, s.space, s.search, query, limit)
	case "ua_read":
		node, _ := args["node"].(string)
		return handleRead(s.space, node)
	case "ua_browse":
		node, _ := args["node"].(string)
		refType, _ := args["reference_type"].(string)
		direction, _ := args["direction"].(string)
		includeSubtypes := true
		if v, ok := args["include_subtypes"].(bool); ok {
			includeSubtypes = v
		}
		return handleBrowse(s.space, node, refType, direction, includeSubtypes)
	case "ua_follow_all":
		node, _ := args["node"].(string)
		refType, _ := args["reference_type"].(string)
		return handleFollowAll(s.space, node, refType)
	case "ua_translate_path":
		path, _ := args["path"].(string)
		start, _ := args["start"].(string)
		return handleTranslatePath(s.space, start, path)
	case "ua_namespaces":
		return getNamespaces(s.space), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "ua://overview":
		return getOverview(s.space), nil
	case "ua://namespaces":
		return getNamespaces(s.space), nil
	case "ua://schema":
		return getSchema(s.space), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves MCP sessions over transport until the client disconnects or
// ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if transport == nil {
		return errors.New("transport must not be nil")
	}
	return s.server.Run(ctx, transport)
}

// RunStdio serves MCP over the process's stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// toolHandler adapts CallTool to the SDK. Tool failures are reported to the
// client as error results, not protocol errors.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", name, err)
			}
		}

		text, err := s.CallTool(ctx, name, args)
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func (s *Server) resourceHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	text, err := s.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}, nil
}

// Tool Handlers

func handleSearch(ctx context.Context, space *graph.AddressSpace, search SearchBackend, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}

	var results []storage.SearchResult
	if search != nil {
		var err error
		results, err = search.FTSSearch(ctx, query, limit)
		if err != nil {
			return "", err
		}
	} else {
		results = scanBrowseNames(space, query, limit)
	}

	if len(results) == 0 {
		return "No results found", nil
	}
	return formatSearchResults(results, query), nil
}

// scanBrowseNames matches query as a case-insensitive substring of browse
// names.
func scanBrowseNames(space *graph.AddressSpace, query string, limit int) []storage.SearchResult {
	needle := strings.ToLower(query)
	var results []storage.SearchResult
	for node := range space.IterNodes() {
		name := strings.ToLower(node.Name())
		if !strings.Contains(name, needle) {
			continue
		}
		score := 1.0
		if name == needle {
			score = 2.0
		}
		if limit > 0 && len(results) >= limit {
			continue
		}
		results = append(results, storage.SearchResult{
			NodeID:     node.ID.String(),
			Score:      score,
			BrowseName: node.BrowseName.String(),
			Class:      node.Class.String(),
			Snippet:    node.Description.String(),
		})
	}
	return results
}

// formatSearchResults formats search results as markdown.
func formatSearchResults(results []storage.SearchResult, query string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", len(results), query))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s)\n", i+1, r.BrowseName, r.Class))
		sb.WriteString(fmt.Sprintf("   NodeId: %s\n", r.NodeID))
		sb.WriteString(fmt.Sprintf("   Score: %.3f\n", r.Score))
		if r.Snippet != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", r.Snippet))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Next: Use `ua_read` or `ua_browse` on a NodeId for the full picture.")

	return sb.String()
}

func handleRead(space *graph.AddressSpace, ref string) (string, error) {
	if ref == "" {
		return "No node provided", nil
	}
	node, err := space.Get(ref)
	if errors.Is(err, graph.ErrNotFound) {
		return fmt.Sprintf("Node '%s' not found", ref), nil
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", node.Name()))
	sb.WriteString(fmt.Sprintf("- **NodeId:** %s\n", node.ID))
	sb.WriteString(fmt.Sprintf("- **NodeClass:** %s\n", node.Class))
	sb.WriteString(fmt.Sprintf("- **BrowseName:** %s\n", node.BrowseName))
	if node.DisplayName != nil {
		sb.WriteString(fmt.Sprintf("- **DisplayName:** %s\n", node.DisplayName))
	}
	if node.Description != nil {
		sb.WriteString(fmt.Sprintf("- **Description:** %s\n", node.Description))
	}
	if node.SymbolicName != "" {
		sb.WriteString(fmt.Sprintf("- **SymbolicName:** %s\n", node.SymbolicName))
	}
	if node.InverseName != nil {
		sb.WriteString(fmt.Sprintf("- **InverseName:** %s\n", node.InverseName))
	}
	if !node.ParentID.IsNull() {
		sb.WriteString(fmt.Sprintf("- **Parent:** %s\n", describe(space, node.ParentID)))
	}

	if va := node.Variable; va != nil {
		sb.WriteString("\n## Value\n\n")
		if va.DataType.IsNull() {
			sb.WriteString("- **DataType:** (unset)\n")
		} else {
			sb.WriteString(fmt.Sprintf("- **DataType:** %s\n", describe(space, va.DataType)))
		}
		sb.WriteString(fmt.Sprintf("- **ValueRank:** %d\n", va.ValueRank))
		if len(va.Dimensions) > 0 {
			sb.WriteString(fmt.Sprintf("- **ArrayDimensions:** %v\n", va.Dimensions))
		}
		switch {
		case va.Value == nil:
			sb.WriteString("- **Value:** (none)\n")
		case va.Value.IsArray:
			sb.WriteString(fmt.Sprintf("- **Value:** %v\n", va.Value.Elements))
		default:
			sb.WriteString(fmt.Sprintf("- **Value:** %v\n", va.Value.Scalar))
		}
	}

	refs, err := space.References(node.ID)
	if err != nil {
		return "", err
	}
	sb.WriteString(fmt.Sprintf("\n%d references. Next: Use `ua_browse` to list them.", len(refs)))

	return sb.String(), nil
}

func handleBrowse(space *graph.AddressSpace, ref, refType, direction string, includeSubtypes bool) (string, error) {
	if ref == "" {
		return "No node provided", nil
	}
	node, err := space.Get(ref)
	if errors.Is(err, graph.ErrNotFound) {
		return fmt.Sprintf("Node '%s' not found", ref), nil
	}
	if err != nil {
		return "", err
	}
	typeID, err := resolveReferenceType(space, refType)
	if err != nil {
		return "", err
	}
	dir, err := graph.ParseBrowseDirection(direction)
	if err != nil {
		return "", err
	}

	refs, err := space.Browse(node.ID, typeID, dir, includeSubtypes)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("References of **%s** (%s):\n\n", node.Name(), node.ID))
	if len(refs) == 0 {
		sb.WriteString("No matching references.\n")
		return sb.String(), nil
	}
	for _, r := range refs {
		arrow := "->"
		if !r.IsForward {
			arrow = "<-"
		}
		sb.WriteString(fmt.Sprintf("- %s %s %s\n", referenceTypeName(space, r.ReferenceType), arrow, describe(space, r.Target)))
	}
	return sb.String(), nil
}

func handleFollowAll(space *graph.AddressSpace, ref, refType string) (string, error) {
	if ref == "" {
		return "No node provided", nil
	}
	node, err := space.Get(ref)
	if errors.Is(err, graph.ErrNotFound) {
		return fmt.Sprintf("Node '%s' not found", ref), nil
	}
	if err != nil {
		return "", err
	}
	typeID, err := resolveReferenceType(space, refType)
	if err != nil {
		return "", err
	}

	reached, err := space.FollowAll(node.ID, typeID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Reachable from **%s** over %s (%d):\n\n", node.Name(), referenceTypeName(space, typeID), len(reached)))
	for _, n := range reached {
		sb.WriteString(fmt.Sprintf("- %s (%s) %s\n", n.BrowseName, n.Class, n.ID))
	}
	return sb.String(), nil
}

func handleTranslatePath(space *graph.AddressSpace, start, path string) (string, error) {
	if path == "" {
		return "No path provided", nil
	}
	startID := graph.ObjectsFolderID
	if start != "" {
		n, err := space.Get(start)
		if errors.Is(err, graph.ErrNotFound) {
			return fmt.Sprintf("Node '%s' not found", start), nil
		}
		if err != nil {
			return "", err
		}
		startID = n.ID
	}

	node, err := space.TranslateBrowsePath(startID, path)
	if errors.Is(err, graph.ErrNotFound) {
		return fmt.Sprintf("Path '%s' does not resolve: %v", path, err), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s resolves to %s (%s)", path, node.ID, node.Class), nil
}

// resolveReferenceType accepts a NodeId or symbol; empty means
// HierarchicalReferences.
func resolveReferenceType(space *graph.AddressSpace, ref string) (graph.NodeId, error) {
	if ref == "" {
		return graph.HierarchicalReferencesID, nil
	}
	n, err := space.Get(ref)
	if err != nil {
		return graph.NullNodeId, fmt.Errorf("reference type %q: %w", ref, err)
	}
	if n.Class != graph.NodeClassReferenceType {
		return graph.NullNodeId, fmt.Errorf("%w: %s is a %s, not a ReferenceType", graph.ErrSchema, ref, n.Class)
	}
	return n.ID, nil
}

func describe(space *graph.AddressSpace, id graph.NodeId) string {
	n, err := space.GetNode(id)
	if err != nil {
		return id.String()
	}
	return fmt.Sprintf("%s (%s) %s", n.BrowseName, n.Class, id)
}

func referenceTypeName(space *graph.AddressSpace, id graph.NodeId) string {
	if n, err := space.GetNode(id); err == nil {
		return n.Name()
	}
	return id.String()
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}

// Resource Handlers

func getOverview(space *graph.AddressSpace) string {
	var sb strings.Builder
	sb.WriteString("# Address Space Overview\n\n")
	sb.WriteString(fmt.Sprintf("**Nodes:** %d\n", space.NodeCount()))
	sb.WriteString(fmt.Sprintf("**References:** %d\n", space.ReferenceCount()))
	sb.WriteString(fmt.Sprintf("**Namespaces:** %d\n", space.Namespaces().Len()))
	sb.WriteString("\n## Nodes by Class\n\n")
	for _, cc := range space.ClassCounts() {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", cc.Class, cc.Count))
	}
	return sb.String()
}

func getNamespaces(space *graph.AddressSpace) string {
	table := space.Namespaces()
	var sb strings.Builder
	sb.WriteString("# Namespace Table\n\n")
	sb.WriteString("| Index | URI | Aliases |\n")
	sb.WriteString("|-------|-----|---------|\n")
	for i, uri := range table.URIs() {
		aliases := table.AliasesOf(uint16(i))
		sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i, uri, strings.Join(aliases, ", ")))
	}
	return sb.String()
}

func getSchema(space *graph.AddressSpace) string {
	var sb strings.Builder
	sb.WriteString("# Address Space Schema\n\n")
	sb.WriteString("## Node Classes\n\n")
	sb.WriteString("| Class | Description |\n")
	sb.WriteString("|-------|-------------|\n")
	sb.WriteString("| `Object` | Instance organizing other nodes |\n")
	sb.WriteString("| `Variable` | Instance holding a value with datatype, value rank and dimensions |\n")
	sb.WriteString("| `Method` | Callable instance |\n")
	sb.WriteString("| `ObjectType` | Type definition for objects |\n")
	sb.WriteString("| `VariableType` | Type definition for variables |\n")
	sb.WriteString("| `DataType` | Datatype, builtin or derived |\n")
	sb.WriteString("| `ReferenceType` | Type of a reference between nodes |\n")
	sb.WriteString("| `View` | Subset of the address space |\n")

	sb.WriteString("\n## Reference Types\n\n")
	writeSubtypeTree(&sb, space, graph.ReferencesID, 0, map[graph.NodeId]bool{})
	return sb.String()
}

func writeSubtypeTree(sb *strings.Builder, space *graph.AddressSpace, id graph.NodeId, depth int, seen map[graph.NodeId]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	n, err := space.GetNode(id)
	if err != nil {
		return
	}
	sb.WriteString(fmt.Sprintf("%s- `%s` %s", strings.Repeat("  ", depth), n.Name(), id))
	if n.InverseName != nil {
		sb.WriteString(fmt.Sprintf(" (inverse: %s)", n.InverseName.Text))
	}
	sb.WriteString("\n")

	subtypes, err := space.Follow(id, graph.HasSubtypeID)
	if err != nil {
		return
	}
	for _, sub := range subtypes {
		writeSubtypeTree(sb, space, sub.ID, depth+1, seen)
	}
}

